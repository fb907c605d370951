package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vorteil/f2fsck/pkg/elog"
)

var log elog.View

var (
	flagVerbose bool
	flagDebug   bool
	flagJSON    bool

	flagFixOn bool
	flagRO    bool
	flagPreen bool
	flagDbgLv int

	v = viper.New()
)

// EXIT_ERR_CODE is the process exit code §6 reserves for "some
// reconciliation in §4.10 failed".
const exitErrCode = 1

func commandInit() {

	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "enable json output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {

		logger := &elog.CLI{}

		if flagJSON {
			logger.DisableTTY = true
			logrus.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logrus.SetFormatter(logger)
		}

		logrus.SetLevel(logrus.TraceLevel)

		if flagDebug {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose {
			logger.IsVerbose = true
		}

		log = logger
		return nil
	}

	checkCmd.Flags().BoolVar(&flagFixOn, "fix-on", false, "attempt to repair faults found during the check")
	checkCmd.Flags().BoolVar(&flagRO, "ro", false, "suppress all device writes, even under --fix-on")
	checkCmd.Flags().BoolVar(&flagPreen, "preen", false, "fail fast on the first orphan-validation error")
	checkCmd.Flags().IntVar(&flagDbgLv, "dbg-lv", 0, "debug verbosity; -1 enables the dentry tree print")

	v.BindPFlag("fix_on", checkCmd.Flags().Lookup("fix-on"))
	v.BindPFlag("ro", checkCmd.Flags().Lookup("ro"))
	v.BindPFlag("preen", checkCmd.Flags().Lookup("preen"))
	v.BindPFlag("dbg_lv", checkCmd.Flags().Lookup("dbg-lv"))
	v.SetEnvPrefix("F2FSCK")
	v.AutomaticEnv()

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkCmd)
}

var rootCmd = &cobra.Command{
	Use:   "f2fsck",
	Short: "f2fsck is a consistency checker and repair engine for f2fs images",
	Long: `f2fsck walks an f2fs image's node and data blocks starting from the
root inode and the orphan-inode list, cross-checks what it finds against
the NAT, SIT, SSA and checkpoint, and — with --fix-on — repairs what it
can.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print f2fsck's version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("f2fsck %s (%s)\n", release, commit)
	},
}

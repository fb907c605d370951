package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vorteil/f2fsck/pkg/device"
	"github.com/vorteil/f2fsck/pkg/fsck"
)

var checkCmd = &cobra.Command{
	Use:   "check <image>",
	Short: "check an f2fs image for consistency, optionally repairing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(args[0])
	},
}

func runCheck(path string) error {

	cfg, err := fsck.LoadConfig(v)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	dev, err := device.Open(path, cfg.RO)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer dev.Close()

	result, err := fsck.Run(cfg, dev, log)
	if err != nil {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	fsck.PrintReport(os.Stdout, result)

	for _, fault := range result.Faults {
		log.Errorf("%v", fault)
	}

	if !result.Passed() {
		os.Exit(exitErrCode)
	}

	return nil
}

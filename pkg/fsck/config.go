package fsck

import (
	"os"
	"path/filepath"

	"github.com/imdario/mergo"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// PreenMode mirrors the original's preen_mode enum: NONE runs normally,
// Preen1 fails fast on the first orphan-validation error instead of
// skipping the entry (§4.9).
type PreenMode int

const (
	PreenNone PreenMode = iota
	Preen1
)

// Config mirrors the four recognized options §6 names: fix_on, ro,
// preen_mode, dbg_lv, plus bug_on which the core itself sets rather than
// reads.
type Config struct {
	FixOn     bool      `mapstructure:"fix_on"`
	RO        bool      `mapstructure:"ro"`
	PreenMode PreenMode `mapstructure:"-"`
	DbgLv     int       `mapstructure:"dbg_lv"`

	// BugOn is written by the core, never read from configuration: it
	// records whether any fault was recorded during the run.
	BugOn bool `mapstructure:"-"`
}

// DefaultConfig is the hard-coded baseline every layer is merged over.
func DefaultConfig() Config {
	return Config{
		FixOn:     false,
		RO:        false,
		PreenMode: PreenNone,
		DbgLv:     0,
	}
}

// DefaultConfigPath resolves ~/.f2fsckrc the way the teacher's CLI layer
// resolves ~/.vorteil for its own configuration file.
func DefaultConfigPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".f2fsckrc"), nil
}

// LoadConfig assembles a Config in three tiers — hard-coded defaults, an
// optional TOML config file, then flag/environment overrides layered on
// top via viper. The file tier is merged over the defaults with mergo;
// each flag/environment key that viper reports as set then overrides its
// field directly. This follows the default/file/flag assembly the
// teacher's vcfg layer performs for build configuration.
func LoadConfig(v *viper.Viper) (Config, error) {

	cfg := DefaultConfig()

	path, err := DefaultConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			v.SetConfigType("toml")
			if readErr := v.ReadInConfig(); readErr == nil {
				var fileCfg Config
				if decErr := v.Unmarshal(&fileCfg); decErr == nil {
					if mergeErr := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); mergeErr != nil {
						return cfg, mergeErr
					}
				}
			}
		}
	}

	var flagCfg Config
	flagCfg.FixOn = v.GetBool("fix_on")
	flagCfg.RO = v.GetBool("ro")
	flagCfg.DbgLv = v.GetInt("dbg_lv")
	if v.GetBool("preen") {
		flagCfg.PreenMode = Preen1
	}

	if v.IsSet("fix_on") {
		cfg.FixOn = flagCfg.FixOn
	}
	if v.IsSet("ro") {
		cfg.RO = flagCfg.RO
	}
	if v.IsSet("dbg_lv") {
		cfg.DbgLv = flagCfg.DbgLv
	}
	if v.IsSet("preen") {
		cfg.PreenMode = flagCfg.PreenMode
	}

	return cfg, nil
}

// TreePrintEnabled reports whether dbg_lv == -1, the tree-print verbosity
// C6 checks before walking dentries purely for debug output (§4.6, §6).
func (c Config) TreePrintEnabled() bool {
	return c.DbgLv == -1
}

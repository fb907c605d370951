package fsck

import "testing"

func TestDefaultConfigIsPassive(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.FixOn || cfg.RO || cfg.BugOn {
		t.Errorf("the default config should neither fix nor force read-only: %+v", cfg)
	}
	if cfg.PreenMode != PreenNone {
		t.Errorf("the default preen mode should be PreenNone, got %v", cfg.PreenMode)
	}
}

func TestTreePrintEnabledOnlyAtDbgLvMinusOne(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.TreePrintEnabled() {
		t.Errorf("dbg_lv=0 should not enable the tree print")
	}

	cfg.DbgLv = -1
	if !cfg.TreePrintEnabled() {
		t.Errorf("dbg_lv=-1 should enable the tree print")
	}

	cfg.DbgLv = 2
	if cfg.TreePrintEnabled() {
		t.Errorf("a positive debug verbosity should not enable the tree print")
	}
}

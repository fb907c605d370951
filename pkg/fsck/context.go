package fsck

import (
	"github.com/vorteil/f2fsck/pkg/device"
	"github.com/vorteil/f2fsck/pkg/elog"
	"github.com/vorteil/f2fsck/pkg/f2fs"
	"github.com/vorteil/f2fsck/pkg/meta"
)

// Counters accumulates the run's global aggregates, compared against CP
// and SIT by the reconciler (C9) at the end of the walk.
type Counters struct {
	ValidBlockCount  int64
	ValidNodeCount   int64
	ValidInodeCount  int64
	ValidNatEntryCnt int64
}

// Context is the explicit reconciliation context the design notes call
// for in place of the original's global config + f2fs_sb_info: it owns
// the shadow bitmaps (C1), the hard-link ledger (C4), the fault collector,
// and the per-run counters, and is passed by reference to every checker.
type Context struct {
	Config Config
	Device device.Device
	Meta   meta.Metadata
	Log    elog.View

	MainBitmap []byte
	NatBitmap  []byte
	SitBitmap  []byte

	HardLinks *HardLinkLedger

	Counters Counters
	Faults   Collector

	natEntryCount uint32
}

// NewContext mirrors fsck_init: it loads the NAT/SIT reference bitmaps
// through the metadata collaborator and allocates the shadow bitmaps the
// walk will populate.
func NewContext(cfg Config, dev device.Device, md meta.Metadata, log elog.View) (*Context, error) {

	natBitmap, natCount, err := md.BuildNatAreaBitmap()
	if err != nil {
		return nil, err
	}

	sitBitmap, err := md.BuildSitAreaBitmap()
	if err != nil {
		return nil, err
	}

	lo := md.Layout()
	totalBlocks := lo.TotalSegs * lo.BlocksPerSeg

	ctx := &Context{
		Config:        cfg,
		Device:        dev,
		Meta:          md,
		Log:           log,
		MainBitmap:    f2fs.NewBitmap(totalBlocks),
		NatBitmap:     natBitmap,
		SitBitmap:     sitBitmap,
		HardLinks:     NewHardLinkLedger(),
		natEntryCount: natCount,
	}
	ctx.Counters.ValidNatEntryCnt = int64(natCount)

	return ctx, nil
}

// Free mirrors fsck_free: it drops the large shadow bitmaps and the hard-
// link ledger so a long-lived process (e.g. a batch of checks) doesn't
// retain them past this run's lifetime.
func (c *Context) Free() {
	c.MainBitmap = nil
	c.NatBitmap = nil
	c.SitBitmap = nil
	c.HardLinks = nil
}

// AddFault records a fault into the run's collector and marks bug_on,
// mirroring DMD_ADD_ERROR's side effect on the shared config.
func (c *Context) AddFault(err error) {
	if err == nil {
		return
	}
	c.Faults.Add(err)
	c.Config.BugOn = true
}

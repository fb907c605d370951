package fsck

import (
	"github.com/vorteil/f2fsck/pkg/device"
	"github.com/vorteil/f2fsck/pkg/elog"
	"github.com/vorteil/f2fsck/pkg/f2fs"
	"github.com/vorteil/f2fsck/pkg/meta"
)

// Result is what Run hands back to its caller: enough to decide the
// process exit code and to drive a report (pkg/fsck/report.go).
type Result struct {
	Reconcile *ReconcileReport
	Faults    []error
	Repaired  bool
}

// Passed reports whether every §4.10 reconciliation succeeded — the
// boolean the exit-code decision in §6 is built on.
func (r *Result) Passed() bool {
	return r.Reconcile != nil && r.Reconcile.OK
}

// Run wires C1 through C10 together into one pass over dev: load metadata,
// walk the root inode and the orphan list, reconcile, and — when the
// policy in cfg calls for it — repair.
func Run(cfg Config, dev device.Device, log elog.View) (*Result, error) {

	md, err := meta.Load(dev)
	if err != nil {
		return nil, err
	}

	ctx, err := NewContext(cfg, dev, md, log)
	if err != nil {
		return nil, err
	}
	defer ctx.Free()

	lo := md.Layout()
	cp := md.Checkpoint()

	log.Section("checking root inode")
	var rootBlkCnt int64
	rootErr := ctx.CheckNode(lo.RootIno, FileDir, NodeInode, &rootBlkCnt, nil)
	log.Check("root inode reachable", rootErr == nil)

	log.Section("sweeping orphan inodes")
	orphanBlkaddr, orphanCount := orphanGeometry(lo, cp)
	orphanErr := ctx.SweepOrphans(cp, orphanBlkaddr, orphanCount)
	log.Check("orphan list consistent", orphanErr == nil)

	log.Section("reconciling metadata")
	report, err := ctx.Verify()
	if err != nil {
		return nil, err
	}
	log.Check("sit segment totals", report.SitSegmentTotalOk)
	log.Check("nat/sit node counts", report.NatNodeCountOk)
	log.Check("checkpoint counters", report.FreeSegCountOk && report.ValidNodeCountOk && report.ValidInodeCountOk && report.ValidBlockCountOk)
	log.Check("nat bitmap fully reached", report.NatBitmapOk)
	log.Check("main bitmap matches sit bitmap", report.MainSitBitmapOk)
	log.Check("current segment cursors free", report.CursegFreeOk)
	log.Check("segment types", report.SegTypeOk)

	repaired := false
	if ctx.ShouldRepair() {
		log.Section("repairing checkpoint")
		if repairErr := ctx.FixCheckpoint(report); repairErr != nil {
			return nil, repairErr
		}
		repaired = true
		log.Check("checkpoint rewritten", true)
	}

	return &Result{
		Reconcile: report,
		Faults:    ctx.Faults.Faults(),
		Repaired:  repaired,
	}, nil
}

// orphanGeometry derives the orphan-block address range from checkpoint
// geometry: orphan blocks sit immediately after the checkpoint header and
// its payload blocks, and run up to where the summary-block pack begins.
func orphanGeometry(lo *f2fs.Layout, cp *f2fs.Checkpoint) (blkaddr int64, count int64) {
	if !cp.HasOrphans() {
		return 0, 0
	}
	start := int64(1) + lo.CpPayload
	count = int64(cp.CpPackStartSum) - start
	if count < 0 {
		count = 0
	}
	blkaddr = lo.CpBlkaddr + start
	return blkaddr, count
}

package fsck

import (
	"github.com/vorteil/f2fsck/pkg/f2fs"
)

// ShouldRepair reports whether C10's fixed sequence should run at all: a
// fix-on run that recorded any fault (§4.11's entry condition). There is
// no separate forced-fix trigger.
func (c *Context) ShouldRepair() bool {
	return c.Config.FixOn && c.Config.BugOn
}

// FixCheckpoint implements C10: the fixed repair sequence run once the
// walk and C9's reconciliation are complete. It is a no-op under
// config.ro beyond what the metadata collaborator itself already elides.
func (c *Context) FixCheckpoint(report *ReconcileReport) error {

	if !c.ShouldRepair() {
		return nil
	}

	if err := c.fixHardLinks(); err != nil {
		return err
	}

	if err := c.fixNatEntries(report); err != nil {
		return err
	}

	if c.Config.RO {
		return nil
	}

	if err := c.Meta.RewriteSitAreaBitmap(c.MainBitmap); err != nil {
		return err
	}

	if err := c.Meta.MoveCursegInfo(); err != nil {
		return err
	}

	if err := c.Meta.WriteCursegInfo(); err != nil {
		return err
	}

	return c.writeCheckpoint(report)
}

// fixHardLinks implements fix_hard_links: every record still pending when
// the walk completed names an inode whose i_links never matched the
// dentries actually found — overwrite i_links with the observed count.
func (c *Context) fixHardLinks() error {

	for _, pending := range c.HardLinks.Pending() {
		entry, err := c.Meta.GetNodeInfo(pending.Nid)
		if err != nil {
			return err
		}
		if !entry.IsValid() {
			continue
		}

		block := make([]byte, f2fs.BlockSize)
		if err := c.Device.ReadBlock(block, int64(entry.Blkaddr)); err != nil {
			return err
		}
		inode, err := decodeInode(block)
		if err != nil {
			return err
		}

		if inode.ILinks == pending.ActualLinks {
			continue
		}
		inode.ILinks = pending.ActualLinks

		if c.Config.RO {
			continue
		}
		out, err := encodeInode(inode)
		if err != nil {
			return err
		}
		if err := c.Device.WriteBlock(out, int64(entry.Blkaddr)); err != nil {
			return err
		}
	}

	return nil
}

// fixNatEntries implements fix_nat_entries: nullify every NAT entry whose
// nid was still set in nat_bitmap at the end of the walk — the
// unreachable nids C9 already collected.
func (c *Context) fixNatEntries(report *ReconcileReport) error {
	if c.Config.RO {
		return nil
	}
	for _, nid := range report.UnreachableNids {
		if err := c.Meta.NullifyNatEntry(nid); err != nil {
			return err
		}
	}
	return nil
}

// writeCheckpoint implements the final step of §4.11: set ckpt_flags,
// refresh the counters C9 just verified, recompute the CRC (delegated to
// the metadata collaborator) and write the checkpoint block.
func (c *Context) writeCheckpoint(report *ReconcileReport) error {

	cp := c.Meta.Checkpoint()

	hadOrphans := cp.HasOrphans()
	cp.CkptFlags = f2fs.CpUmountFlag
	if hadOrphans {
		cp.CkptFlags |= f2fs.CpOrphanPresent
	}

	cp.ValidBlockCount = uint64(c.Counters.ValidBlockCount)
	cp.ValidNodeCount = uint32(c.Counters.ValidNodeCount)
	cp.ValidInodeCount = uint32(c.Counters.ValidInodeCount)

	_ = report

	return c.Meta.WriteCheckpoint(cp)
}

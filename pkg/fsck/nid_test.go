package fsck

import (
	"testing"

	"github.com/vorteil/f2fsck/pkg/f2fs"
)

func newTestContext(lo *f2fs.Layout, md *fakeMetadata, dev *fakeDevice) *Context {
	return &Context{
		Config:     DefaultConfig(),
		Device:     dev,
		Meta:       md,
		MainBitmap: f2fs.NewBitmap(lo.TotalSegs * lo.BlocksPerSeg),
		NatBitmap:  f2fs.NewBitmap(256),
		SitBitmap:  f2fs.NewBitmap(lo.TotalSegs * lo.BlocksPerSeg),
		HardLinks:  NewHardLinkLedger(),
	}
}

func TestSanityCheckNidHappyPath(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	const nid = 42
	blkaddr := int64(lo.MainBlkaddr + 3)
	md.nat[nid] = &f2fs.NatEntry{Ino: nid, Blkaddr: uint32(blkaddr)}
	dev.blocks[blkaddr] = buildInodeBlock(nid, nid, 0x4000)
	f2fs.BitmapSet(c.SitBitmap, blkaddr-lo.MainBlkaddr)
	f2fs.BitmapSet(c.NatBitmap, nid)

	info, err := c.SanityCheckNid(nid, FileDir, NodeInode)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Footer.Ino != nid || info.Footer.Nid != nid {
		t.Errorf("unexpected footer: %+v", info.Footer)
	}
	if !c.NatReached(nid) {
		t.Errorf("a successful check should mark the nid reached")
	}
	if !c.Faults.Empty() {
		t.Errorf("a clean nid should not record any fault, got %v", c.Faults.Faults())
	}
}

func TestSanityCheckNidRejectsOutOfRangeNid(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	_, err := c.SanityCheckNid(0, FileDir, NodeInode)
	if err == nil {
		t.Fatalf("nid 0 should be rejected")
	}
	f, ok := AsFault(err)
	if !ok || f.Code != PrInvalidNid {
		t.Errorf("expected PrInvalidNid, got %v", err)
	}
}

func TestSanityCheckNidRejectsZeroIno(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	const nid = 7
	md.nat[nid] = &f2fs.NatEntry{Ino: 0, Blkaddr: uint32(lo.MainBlkaddr)}

	_, err := c.SanityCheckNid(nid, FileDir, NodeInode)
	f, ok := AsFault(err)
	if !ok || f.Code != PrInoIsZero {
		t.Errorf("expected PrInoIsZero, got %v", err)
	}
}

func TestSanityCheckNidRejectsNewAddrSentinel(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	const nid = 7
	md.nat[nid] = &f2fs.NatEntry{Ino: nid, Blkaddr: f2fs.NewAddr}

	_, err := c.SanityCheckNid(nid, FileDir, NodeInode)
	f, ok := AsFault(err)
	if !ok || f.Code != PrBlkaddrIsNewAddr {
		t.Errorf("expected PrBlkaddrIsNewAddr, got %v", err)
	}
}

func TestSanityCheckNidRejectsBlkaddrOutsideMainArea(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	const nid = 7
	md.nat[nid] = &f2fs.NatEntry{Ino: nid, Blkaddr: 1}

	_, err := c.SanityCheckNid(nid, FileDir, NodeInode)
	f, ok := AsFault(err)
	if !ok || f.Code != PrNodeInvalidBlkaddr {
		t.Errorf("expected PrNodeInvalidBlkaddr, got %v", err)
	}
}

func TestSanityCheckNidRejectsFooterInoMismatch(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	const nid = 7
	blkaddr := int64(lo.MainBlkaddr + 1)
	md.nat[nid] = &f2fs.NatEntry{Ino: nid, Blkaddr: uint32(blkaddr)}
	dev.blocks[blkaddr] = buildInodeBlock(nid, nid+1, 0x4000)
	f2fs.BitmapSet(c.SitBitmap, blkaddr-lo.MainBlkaddr)

	_, err := c.SanityCheckNid(nid, FileDir, NodeInode)
	f, ok := AsFault(err)
	if !ok || f.Code != PrNodeInoNotEqualFooterIno {
		t.Errorf("expected PrNodeInoNotEqualFooterIno, got %v", err)
	}
}

func TestSanityCheckNidRejectsNonInodeWhenInodeExpected(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	const nid = 7
	blkaddr := int64(lo.MainBlkaddr + 1)
	md.nat[nid] = &f2fs.NatEntry{Ino: nid, Blkaddr: uint32(blkaddr)}
	// A footer with nid != ino names a non-inode node.
	dev.blocks[blkaddr] = buildInodeBlock(nid, nid+1, 0)
	f2fs.BitmapSet(c.SitBitmap, blkaddr-lo.MainBlkaddr)

	_, err := c.SanityCheckNid(nid, FileDir, NodeInode)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

// TestSanityCheckNidRejectsStaleSitCoverage reproduces spec.md's scenario 4:
// a nat entry that points at a blkaddr the SIT no longer covers as valid.
func TestSanityCheckNidRejectsStaleSitCoverage(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	const nid = 7
	blkaddr := int64(lo.MainBlkaddr + 1)
	md.nat[nid] = &f2fs.NatEntry{Ino: nid, Blkaddr: uint32(blkaddr)}
	dev.blocks[blkaddr] = buildInodeBlock(nid, nid, 0x4000)
	// Deliberately leave the SIT shadow bitmap clear at this blkaddr.

	_, err := c.SanityCheckNid(nid, FileDir, NodeInode)
	f, ok := AsFault(err)
	if !ok || f.Code != PrNatBlkaddrOutSitBitmap {
		t.Errorf("expected PrNatBlkaddrOutSitBitmap, got %v", err)
	}
}

func TestSanityCheckNidRejectsDuplicateDirVisit(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	const nid = 7
	blkaddr := int64(lo.MainBlkaddr + 1)
	md.nat[nid] = &f2fs.NatEntry{Ino: nid, Blkaddr: uint32(blkaddr)}
	dev.blocks[blkaddr] = buildInodeBlock(nid, nid, 0x4000)
	f2fs.BitmapSet(c.SitBitmap, blkaddr-lo.MainBlkaddr)

	// Simulate the nid having already been reached by an earlier visit.
	f2fs.BitmapSet(c.NatBitmap, nid)
	c.ClearNat(nid)

	_, err := c.SanityCheckNid(nid, FileDir, NodeInode)
	f, ok := AsFault(err)
	if !ok || f.Code != PrDuplicateOrphanOrXattrNid {
		t.Errorf("expected PrDuplicateOrphanOrXattrNid, got %v", err)
	}
}

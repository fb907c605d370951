package fsck

import (
	"testing"

	"github.com/vorteil/f2fsck/pkg/f2fs"
	"github.com/vorteil/f2fsck/pkg/meta"
)

func TestSetMainDetectsDuplicateBlock(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	blkaddr := lo.MainBlkaddr + 10
	md.seg[lo.GetSegNo(blkaddr)] = &meta.SegEntry{Type: f2fs.CursegHotNode}

	dup, err := c.SetMain(blkaddr, f2fs.CursegHotNode)
	if err != nil || dup {
		t.Fatalf("first visit should not be a duplicate: dup=%v err=%v", dup, err)
	}

	dup, err = c.SetMain(blkaddr, f2fs.CursegHotNode)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup {
		t.Errorf("second visit of the same block should be flagged a duplicate")
	}
	faults := c.Faults.Faults()
	if len(faults) != 1 {
		t.Fatalf("expected exactly one fault, got %d", len(faults))
	}
	f, _ := AsFault(faults[0])
	if f.Code != PrDuplicateNodeBlkaddrInMainBitmap {
		t.Errorf("expected PrDuplicateNodeBlkaddrInMainBitmap, got %v", f.Code)
	}
}

func TestSetMainFlagsCrossAxisTypeMismatch(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	blkaddr := lo.MainBlkaddr + 10
	md.seg[lo.GetSegNo(blkaddr)] = &meta.SegEntry{Type: f2fs.CursegHotData}

	if _, err := c.SetMain(blkaddr, f2fs.CursegHotNode); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	faults := c.Faults.Faults()
	if len(faults) != 1 {
		t.Fatalf("expected a segment-type mismatch fault, got %d faults", len(faults))
	}
	f, _ := AsFault(faults[0])
	if f.Code != PrSitTypeIsError {
		t.Errorf("expected PrSitTypeIsError, got %v", f.Code)
	}
}

func TestSetMainToleratesSameAxisTypeMismatch(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	blkaddr := lo.MainBlkaddr + 10
	md.seg[lo.GetSegNo(blkaddr)] = &meta.SegEntry{Type: f2fs.CursegWarmNode}

	if _, err := c.SetMain(blkaddr, f2fs.CursegHotNode); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Faults.Empty() {
		t.Errorf("a hot/warm/cold mismatch on the same axis should not fault, got %v", c.Faults.Faults())
	}
}

func TestTestMainReflectsSetMain(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	blkaddr := lo.MainBlkaddr + 3
	md.seg[lo.GetSegNo(blkaddr)] = &meta.SegEntry{Type: f2fs.CursegHotNode}

	if c.TestMain(blkaddr) {
		t.Fatalf("an unvisited block should test false")
	}
	if _, err := c.SetMain(blkaddr, f2fs.CursegHotNode); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.TestMain(blkaddr) {
		t.Errorf("a visited block should test true")
	}
}

func TestNatBitmapTracksReachedState(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	const nid = 11
	f2fs.BitmapSet(c.NatBitmap, nid)

	if c.NatReached(nid) {
		t.Fatalf("a nid with its bit still set should not be reached yet")
	}
	c.ClearNat(nid)
	if !c.NatReached(nid) {
		t.Errorf("clearing the shadow bit should mark the nid reached")
	}
}

func TestTestSitReflectsShadowBitmap(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)

	blkaddr := lo.MainBlkaddr + 2
	if c.TestSit(blkaddr) {
		t.Fatalf("an uncovered blkaddr should test false")
	}
	f2fs.BitmapSet(c.SitBitmap, blkaddr-lo.MainBlkaddr)
	if !c.TestSit(blkaddr) {
		t.Errorf("a blkaddr marked in the SIT shadow bitmap should test true")
	}
}

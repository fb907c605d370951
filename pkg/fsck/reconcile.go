package fsck

import (
	"github.com/vorteil/f2fsck/pkg/f2fs"
)

// ReconcileReport is what C9 hands back to the caller: every cross-check
// outcome plus the unreachable-nid list §4.10/§7 names, so the reporting
// layer (C.report) can render each line without re-deriving anything.
type ReconcileReport struct {
	SitSegmentTotalOk bool
	NatNodeCountOk    bool
	FreeSegCountOk    bool
	ValidNodeCountOk  bool
	ValidInodeCountOk bool
	ValidBlockCountOk bool
	NatBitmapOk       bool
	MainSitBitmapOk   bool
	CursegFreeOk      bool
	SegTypeOk         bool

	UnreachableNids []uint32
	OK              bool
}

// Verify implements C9: fsck_chk_meta plus fsck_verify, comparing the
// walk's shadow bitmaps and counters against the loaded metadata. It never
// mutates anything; repair decisions belong to C10.
func (c *Context) Verify() (*ReconcileReport, error) {

	r := &ReconcileReport{OK: true}
	lo := c.Meta.Layout()
	cp := c.Meta.Checkpoint()

	// SIT free + occupied segments == total segments. A current segment
	// with zero valid blocks still counts as occupied.
	var freeSegs, occupiedSegs int64
	var sitNodeBlocks int64
	curSegSet := c.currentSegmentSet(cp)

	for segno := int64(0); segno < lo.TotalSegs; segno++ {
		se, err := c.Meta.GetSegEntry(segno)
		if err != nil {
			return nil, err
		}
		if se.ValidBlocks == 0 && !curSegSet[segno] {
			freeSegs++
		} else {
			occupiedSegs++
		}
		if se.Type.IsNodeType() {
			sitNodeBlocks += int64(se.ValidBlocks)
		}
	}

	r.SitSegmentTotalOk = freeSegs+occupiedSegs == lo.TotalSegs
	if !r.SitSegmentTotalOk {
		c.AddFault(NewFault(PrSitSegmentCountMismatchWithTotal, "sit free+occupied segment sum disagrees with total segments"))
		r.OK = false
	}

	r.NatNodeCountOk = sitNodeBlocks == c.Counters.ValidNatEntryCnt
	if !r.NatNodeCountOk {
		c.AddFault(NewFault(PrNatNodeCountMismatchWithSit, "sit node-block count disagrees with valid_nat_entry_cnt"))
		r.OK = false
	}

	r.FreeSegCountOk = uint32(freeSegs) == cp.FreeSegmentCount
	if !r.FreeSegCountOk {
		c.AddFault(NewFault(PrSitFreesegCountMismatchWithCp, "sit free-segment count disagrees with cp.free_segment_count"))
		r.OK = false
	}

	r.ValidNodeCountOk = uint32(c.Counters.ValidNodeCount) == cp.ValidNodeCount
	if !r.ValidNodeCountOk {
		c.AddFault(NewFault(PrNatNodeCountMismatchWithCp, "walker node count disagrees with cp.valid_node_count"))
		r.OK = false
	}

	r.ValidInodeCountOk = uint32(c.Counters.ValidInodeCount) == cp.ValidInodeCount
	if !r.ValidInodeCountOk {
		c.AddFault(NewFault(PrNatInodeCountMismatchWithCp, "walker inode count disagrees with cp.valid_inode_count"))
		r.OK = false
	}

	r.ValidBlockCountOk = uint64(c.Counters.ValidBlockCount) == cp.ValidBlockCount
	if !r.ValidBlockCountOk {
		c.AddFault(NewFault(PrNatInodeCountMismatchWithCp, "walker block count disagrees with cp.valid_block_count"))
		r.OK = false
	}

	// nat_bitmap all-zero: every NAT-known nid was reached.
	r.NatBitmapOk = f2fs.IsAllZero(c.NatBitmap)
	if !r.NatBitmapOk {
		for nid := 0; nid < len(c.NatBitmap)*8; nid++ {
			if f2fs.BitmapTest(c.NatBitmap, int64(nid)) {
				r.UnreachableNids = append(r.UnreachableNids, uint32(nid))
				c.AddFault(NewFaultNid(PrNidIsUnreachable, uint32(nid), "nid never reached by the walk"))
			}
		}
		r.OK = false
	}

	// main_bitmap == sit_bitmap, byte for byte.
	r.MainSitBitmapOk = bytesEqual(c.MainBitmap, c.SitBitmap)
	if !r.MainSitBitmapOk {
		c.AddFault(NewFault(PrNatBlkaddrOutSitBitmap, "main bitmap disagrees with sit bitmap"))
		r.OK = false
	}

	// Current segments: next-write offset free, and (LFS) every later
	// offset in that segment also free.
	r.CursegFreeOk = true
	for _, seg := range curSegEntries(cp) {
		for ofs := seg.blkoff; ofs < lo.BlocksPerSeg; ofs++ {
			blkaddr := lo.StartBlock(seg.segno) + ofs
			if c.TestMain(blkaddr) {
				code := PrCurNextBlkIsNotFree
				if ofs > seg.blkoff {
					code = PrLfsHasNoFreeSection
				}
				c.AddFault(NewFaultBlk(code, blkaddr, "current segment write cursor is not free"))
				r.CursegFreeOk = false
				r.OK = false
				break
			}
		}
	}

	// Per-segment original type vs. current type, benign cold-data
	// downgrades excepted.
	r.SegTypeOk = true
	for segno := int64(0); segno < lo.TotalSegs; segno++ {
		se, err := c.Meta.GetSegEntry(segno)
		if err != nil {
			return nil, err
		}
		if se.Type == se.OrigType {
			continue
		}
		if se.OrigType.IsDataType() && se.Type == f2fs.CursegColdData {
			continue
		}
		c.AddFault(NewFaultBlk(PrSitTypeIsError, lo.StartBlock(segno), "segment type disagrees with original type"))
		r.SegTypeOk = false
		r.OK = false
	}

	return r, nil
}

type curSeg struct {
	segno  int64
	blkoff int64
}

type curSegSetType map[int64]bool

// currentSegmentSet collects the six current-segment numbers CP tracks, so
// the free/occupied segment count can treat them as occupied even with
// zero valid blocks.
func (c *Context) currentSegmentSet(cp *f2fs.Checkpoint) curSegSetType {
	set := make(curSegSetType)
	for _, segno := range cp.CurNodeSegno {
		set[int64(segno)] = true
	}
	for _, segno := range cp.CurDataSegno {
		set[int64(segno)] = true
	}
	return set
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// curSegEntries rebuilds the (segno, blkoff) pairs for every current
// segment tracked by the checkpoint, used by Verify's cursor check.
func curSegEntries(cp *f2fs.Checkpoint) []curSeg {
	out := make([]curSeg, 0, f2fs.NrCursegType)
	for i, segno := range cp.CurNodeSegno {
		out = append(out, curSeg{segno: int64(segno), blkoff: int64(cp.CurNodeBlkoff[i])})
	}
	for i, segno := range cp.CurDataSegno {
		out = append(out, curSeg{segno: int64(segno), blkoff: int64(cp.CurDataBlkoff[i])})
	}
	return out
}

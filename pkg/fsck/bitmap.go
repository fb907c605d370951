package fsck

import "github.com/vorteil/f2fsck/pkg/f2fs"

// SetMain implements C1's set_main: record that blkaddr was visited by the
// walk with expected segment type want. If the segment's recorded type is
// uninitialized or disagrees on the data-vs-node axis (a hot/warm/cold
// difference alone is accepted), the mismatch is recorded as a fault and
// the block is still marked visited (§4.1). The segment's recorded type
// is not changed.
func (c *Context) SetMain(blkaddr int64, want f2fs.SegType) (duplicate bool, err error) {

	lo := c.Meta.Layout()
	segno := lo.GetSegNo(blkaddr)

	se, getErr := c.Meta.GetSegEntry(segno)
	if getErr != nil {
		return false, getErr
	}

	if se.Type >= f2fs.NoCheckType || !se.Type.SameAxis(want) {
		c.AddFault(NewFaultBlk(PrSitTypeIsError, blkaddr, "segment type disagrees with expected axis"))
	}

	idx := blkaddr - lo.MainBlkaddr
	duplicate = f2fs.BitmapSet(c.MainBitmap, idx)
	if duplicate {
		code := PrDuplicateNodeBlkaddrInMainBitmap
		if want.IsDataType() {
			code = PrDuplicateDataBlkaddrInMainBitmap
		}
		c.AddFault(NewFaultBlk(code, blkaddr, "block already visited"))
	}

	c.Counters.ValidBlockCount++

	return duplicate, nil
}

// TestMain implements C1's test_main: whether blkaddr has already been
// visited.
func (c *Context) TestMain(blkaddr int64) bool {
	lo := c.Meta.Layout()
	idx := blkaddr - lo.MainBlkaddr
	return f2fs.BitmapTest(c.MainBitmap, idx)
}

// TestSit implements C1's test_sit: whether SIT's read-only reference
// bitmap believes blkaddr is in use.
func (c *Context) TestSit(blkaddr int64) bool {
	lo := c.Meta.Layout()
	idx := blkaddr - lo.MainBlkaddr
	return f2fs.BitmapTest(c.SitBitmap, idx)
}

// ClearNat marks nid as reached in the NAT shadow bitmap — C3(k)'s "mark
// NAT's shadow bit reached" step. The bitmap started fully set from NAT's
// own contents; a fully-drained (all-zero) bitmap at the end of the walk
// means every known nid was visited (§4.10).
func (c *Context) ClearNat(nid uint32) {
	if int64(nid) >= int64(len(c.NatBitmap))*8 {
		return
	}
	f2fs.BitmapClear(c.NatBitmap, int64(nid))
}

// NatReached reports whether nid's NAT shadow bit has already been
// cleared — used to detect a nid visited more than once outside the
// walk's own recursion (e.g. a duplicate orphan entry).
func (c *Context) NatReached(nid uint32) bool {
	if int64(nid) >= int64(len(c.NatBitmap))*8 {
		return false
	}
	return !f2fs.BitmapTest(c.NatBitmap, int64(nid))
}

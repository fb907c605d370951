package f2fs

import "testing"

func testLayout() *Layout {
	return &Layout{
		BlocksPerSeg: 512,
		TotalSegs:    16,
		MainBlkaddr:  1000,
	}
}

func TestGetSegNoAndOffsetInSeg(t *testing.T) {
	lo := testLayout()

	if segno := lo.GetSegNo(1000); segno != 0 {
		t.Errorf("first main-area block should be segment 0, got %d", segno)
	}
	if segno := lo.GetSegNo(1000 + 512); segno != 1 {
		t.Errorf("block 512 into the main area should be segment 1, got %d", segno)
	}

	if ofs := lo.OffsetInSeg(1000); ofs != 0 {
		t.Errorf("first main-area block should be offset 0, got %d", ofs)
	}
	if ofs := lo.OffsetInSeg(1000 + 513); ofs != 1 {
		t.Errorf("block 513 into the main area should be offset 1 of segment 1, got %d", ofs)
	}
}

func TestStartBlock(t *testing.T) {
	lo := testLayout()
	if lo.StartBlock(0) != 1000 {
		t.Errorf("segment 0 should start at the main blkaddr")
	}
	if lo.StartBlock(2) != 1000+2*512 {
		t.Errorf("segment 2 should start 2*blocks_per_seg past the main blkaddr")
	}
}

func TestIsValidBlkaddr(t *testing.T) {
	lo := testLayout()

	if lo.IsValidBlkaddr(NullAddr) {
		t.Errorf("NullAddr should never be a valid blkaddr")
	}
	if lo.IsValidBlkaddr(NewAddr) {
		t.Errorf("NewAddr should never be a valid blkaddr")
	}
	if lo.IsValidBlkaddr(999) {
		t.Errorf("a block before the main area should be invalid")
	}
	if !lo.IsValidBlkaddr(1000) {
		t.Errorf("the first main-area block should be valid")
	}
	last := lo.MainBlkaddr + lo.TotalSegs*lo.BlocksPerSeg - 1
	if !lo.IsValidBlkaddr(last) {
		t.Errorf("the last main-area block should be valid")
	}
	if lo.IsValidBlkaddr(last + 1) {
		t.Errorf("one past the last main-area block should be invalid")
	}
}

func TestSegTypeAxis(t *testing.T) {
	if !CursegHotData.SameAxis(CursegColdData) {
		t.Errorf("hot data and cold data should share the data axis")
	}
	if CursegHotData.SameAxis(CursegWarmNode) {
		t.Errorf("data and node segment types should not share an axis")
	}
	if !CursegHotNode.IsNodeType() {
		t.Errorf("CursegHotNode should be a node type")
	}
	if !CursegWarmData.IsDataType() {
		t.Errorf("CursegWarmData should be a data type")
	}
}

package f2fs

// SegType is the coarse allocation class a segment belongs to. The walker
// records these against the shadow main bitmap and the reconciler compares
// them back against SIT's per-segment type.
type SegType int

// Segment types, ordered the same way the original's curseg array is:
// data types first, then node types. NoCheckType marks a segment whose
// type has never been observed by the walk or by SIT.
const (
	CursegHotData SegType = iota
	CursegWarmData
	CursegColdData
	CursegHotNode
	CursegWarmNode
	CursegColdNode
	NoCheckType
)

// IsNodeType reports whether t names one of the three node segment classes.
func (t SegType) IsNodeType() bool {
	return t == CursegHotNode || t == CursegWarmNode || t == CursegColdNode
}

// IsDataType reports whether t names one of the three data segment classes.
func (t SegType) IsDataType() bool {
	return t == CursegHotData || t == CursegWarmData || t == CursegColdData
}

// SameAxis reports whether a and b are on the same data-vs-node axis,
// ignoring the hot/warm/cold distinction — §4.1's "coarse axis" used to
// decide whether a type mismatch is safe to patch over.
func (t SegType) SameAxis(o SegType) bool {
	return t.IsNodeType() == o.IsNodeType()
}

// Layout holds the superblock-derived geometry constants every component
// needs to translate a block address into a segment number and back.
type Layout struct {
	BlocksPerSeg    int64
	SegsPerSec      int64
	SecsPerZone     int64
	TotalSegs       int64
	MainBlkaddr     int64
	SegCount0       int64 // segment0 block address; GetSegNo counts from MainBlkaddr instead
	SitBlkaddr      int64
	NatBlkaddr      int64
	SsaBlkaddr      int64
	CpBlkaddr       int64
	CpPayload       int64
	RootIno         uint32
	NodeIno         uint32
	MetaIno         uint32
	AddrsPerInode   int
	AddrsPerBlock   int
	NatEntryPerBlk  int
	SitEntryPerBlk  int
	SitVBlockMapLen int
}

// GetSegNo returns the segment number owning block address blkaddr,
// relative to the start of the main area.
func (l *Layout) GetSegNo(blkaddr int64) int64 {
	return (blkaddr - l.MainBlkaddr) / l.BlocksPerSeg
}

// OffsetInSeg returns blkaddr's offset within its owning segment.
func (l *Layout) OffsetInSeg(blkaddr int64) int64 {
	return (blkaddr - l.MainBlkaddr) % l.BlocksPerSeg
}

// StartBlock returns the first block address of segment segno.
func (l *Layout) StartBlock(segno int64) int64 {
	return l.MainBlkaddr + segno*l.BlocksPerSeg
}

// IsValidBlkaddr reports whether blkaddr falls inside the main area.
func (l *Layout) IsValidBlkaddr(blkaddr int64) bool {
	if blkaddr == NullAddr || blkaddr == NewAddr {
		return false
	}
	return blkaddr >= l.MainBlkaddr && blkaddr < l.MainBlkaddr+l.TotalSegs*l.BlocksPerSeg
}

// SumBlkaddr returns the SSA block address summarizing segno.
func (l *Layout) SumBlkaddr(segno int64) int64 {
	return l.SsaBlkaddr + segno
}

package f2fs

// Checkpoint flags, matching the CP_*_FLAG bits of struct f2fs_checkpoint.
const (
	CpUmountFlag      uint32 = 0x1
	CpOrphanPresent   uint32 = 0x2
	CpCompactSumFlag  uint32 = 0x4
	CpErrorFlag       uint32 = 0x8
	ChecksumOffset           = BlockSize - 4
	MaxActiveLogs            = 16
	NrCursegDataType         = 3
	NrCursegNodeType         = 3
	NrCursegType             = NrCursegDataType + NrCursegNodeType
)

// Checkpoint mirrors struct f2fs_checkpoint: the global counters and flags
// C9/C10 read and rewrite.
type Checkpoint struct {
	CheckpointVer      uint64
	UserBlockCount     uint64
	ValidBlockCount    uint64
	RsvdSegmentCount   uint32
	OverprovSegCount   uint32
	FreeSegmentCount   uint32
	CurNodeSegno       [NrCursegNodeType]uint32
	CurNodeBlkoff      [NrCursegNodeType]uint16
	CurDataSegno       [NrCursegDataType]uint32
	CurDataBlkoff      [NrCursegDataType]uint16
	CkptFlags          uint32
	CpPackTotalBlkCnt  uint32
	CpPackStartSum     uint32
	ValidNodeCount     uint32
	ValidInodeCount    uint32
	NextFreeNid        uint32
	SitVerBitmapBytes  uint32
	NatVerBitmapBytes  uint32
	Checksum           uint32
	ElapsedTime        uint64
	AllocType          [NrCursegType]uint8
	SitNatVersionBmp   [1]byte
}

// HasOrphans reports whether the checkpoint's orphan-present flag is set,
// the trigger for C8's sweep.
func (cp *Checkpoint) HasOrphans() bool {
	return cp.CkptFlags&CpOrphanPresent != 0
}

// IsSlot2 reports whether this checkpoint occupies the secondary slot,
// used by C10 to write the checkpoint back into that same slot.
func (cp *Checkpoint) IsSlot2() bool {
	return cp.CheckpointVer%2 == 0
}

package f2fs

import "github.com/google/uuid"

// SuperblockMagic identifies a valid f2fs superblock.
const SuperblockMagic = 0xF2F52010

// Superblock mirrors struct f2fs_super_block, laid out with the same field
// order and widths as the on-disk structure so it can be read with a single
// encoding/binary.Read against a 4 KiB block starting at offset 0x400.
type Superblock struct {
	Magic              uint32    // 0x0
	MajorVer           uint16    // 0x4
	MinorVer           uint16    // 0x6
	LogSectorSize      uint32    // 0x8
	LogSectorsPerBlock uint32    // 0xC
	LogBlocksize       uint32    // 0x10
	LogBlocksPerSeg    uint32    // 0x14
	SegsPerSec         uint32    // 0x18
	SecsPerZone        uint32    // 0x1C
	ChecksumOffset     uint32    // 0x20
	BlockCount         uint64    // 0x24
	SectionCount       uint32    // 0x2C
	SegmentCount       uint32    // 0x30
	SegmentCountCkpt   uint32    // 0x34
	SegmentCountSit    uint32    // 0x38
	SegmentCountNat    uint32    // 0x3C
	SegmentCountSsa    uint32    // 0x40
	SegmentCountMain   uint32    // 0x44
	SegmentZeroBlkaddr uint32    // 0x48
	CpBlkaddr          uint32    // 0x4C
	SitBlkaddr         uint32    // 0x50
	NatBlkaddr         uint32    // 0x54
	SsaBlkaddr         uint32    // 0x58
	MainBlkaddr        uint32    // 0x5C
	RootIno            uint32    // 0x60
	NodeIno            uint32    // 0x64
	MetaIno            uint32    // 0x68
	UUID               uuid.UUID // 0x6C
	CpPayload          uint32    // 0x7C
}

// LogBlocksPerSegment returns the segment size in blocks as an int64,
// a convenience over the raw log2 field.
func (s *Superblock) LogBlocksPerSegment() int64 {
	return 1 << s.LogBlocksPerSeg
}

// ToLayout derives the geometry constants the rest of the checker needs
// from a parsed superblock.
func (s *Superblock) ToLayout() *Layout {
	blocksPerSeg := int64(1) << s.LogBlocksPerSeg
	return &Layout{
		BlocksPerSeg:    blocksPerSeg,
		SegsPerSec:      int64(s.SegsPerSec),
		SecsPerZone:     int64(s.SecsPerZone),
		TotalSegs:       int64(s.SegmentCountMain),
		MainBlkaddr:     int64(s.MainBlkaddr),
		SitBlkaddr:      int64(s.SitBlkaddr),
		NatBlkaddr:      int64(s.NatBlkaddr),
		SsaBlkaddr:      int64(s.SsaBlkaddr),
		CpBlkaddr:       int64(s.CpBlkaddr),
		CpPayload:       int64(s.CpPayload),
		RootIno:         s.RootIno,
		NodeIno:         s.NodeIno,
		MetaIno:         s.MetaIno,
		AddrsPerInode:   AddrsPerInode,
		AddrsPerBlock:   AddrsPerBlock,
		NatEntryPerBlk:  NatEntryPerBlock,
		SitEntryPerBlk:  SitEntryPerBlock,
		SitVBlockMapLen: SitVBlockMapSizeInBytes,
	}
}

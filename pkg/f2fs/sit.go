package f2fs

// SitEntryPerBlock is the number of SIT entries packed into one block.
const SitEntryPerBlock = BlockSize / 74 // struct f2fs_sit_entry is 74 bytes

// SitVBlockMapSizeInBytes is the size, in bytes, of a SIT entry's
// per-block validity bitmap (one bit per block in a segment, 512 blocks).
const SitVBlockMapSizeInBytes = 64

// SitEntry mirrors struct f2fs_sit_entry: per-segment validity map plus the
// packed (type, age) vblocks field.
type SitEntry struct {
	VBlocks uint16
	ValidMap [SitVBlockMapSizeInBytes]byte
	Mtime   uint64
}

// Type extracts the segment type from the packed VBlocks field (high bits).
func (e *SitEntry) Type() SegType {
	return SegType((e.VBlocks >> 10) & 0x3F)
}

// ValidBlocks extracts the valid-block count from the packed VBlocks field
// (low 10 bits).
func (e *SitEntry) ValidBlocks() int {
	return int(e.VBlocks & 0x3FF)
}

// TestValid reports whether offset ofs within this segment is marked valid
// in the SIT validity bitmap.
func (e *SitEntry) TestValid(ofs int64) bool {
	return BitmapTest(e.ValidMap[:], ofs)
}

package f2fs

// NatEntryPerBlock is the number of NAT entries packed into one block.
const NatEntryPerBlock = BlockSize / 9 // each raw entry is 9 bytes on disk

// NatEntry mirrors struct f2fs_nat_entry: nid -> (ino, blkaddr, version).
type NatEntry struct {
	Version uint8
	Ino     uint32
	Blkaddr uint32
}

// IsValid reports whether a NAT entry names a live node: a zero ino means
// the nid was never allocated.
func (e *NatEntry) IsValid() bool {
	return e.Ino != 0
}

// NatBlock is one block's worth of packed NAT entries.
type NatBlock struct {
	Entries [NatEntryPerBlock]NatEntry
}

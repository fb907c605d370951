package f2fs

// XattrMagic identifies a valid xattr region header.
const XattrMagic = 0xF2F52011

// InlineXattrSize is the spare space inside an inode reserved for inline
// xattrs when INLINE_XATTR is set, in bytes: the 50 4-byte words of
// F2FS_INLINE_XATTR_ADDRS.
const InlineXattrSize = 50 * 4

// InlineXattrAddrOffset is the index into Inode.IAddr where the inline
// xattr region starts: the last InlineXattrSize/4 address slots, matching
// how F2FS reserves the tail of i_addr for inline xattrs rather than a
// separate field.
const InlineXattrAddrOffset = AddrsPerInode - InlineXattrSize/4

// XattrHeader mirrors struct f2fs_xattr_header: the magic, a refcount
// (always 1 for a single external xattr block, never shared) and a CRC
// over the fscrypt context when one is present.
type XattrHeader struct {
	Magic   uint32
	Refcount uint32
	HCtxCrc uint32
	_       [4]uint32 // reserved
}

// XattrEntry mirrors struct f2fs_xattr_entry: one name/value pair in the
// concatenated inline+external xattr buffer.
type XattrEntry struct {
	NameIndex uint8
	NameLen   uint8
	ValueSize uint16
	Name      []byte
	Value     []byte
}

// EncryptionXattrNameIndex and EncryptionXattrName identify the fscrypt
// context xattr entry C5 searches for when rebuilding a corrupt context.
const (
	EncryptionXattrNameIndex = 9 // F2FS_XATTR_INDEX_ENCRYPTION
	EncryptionXattrName      = "c"
	EncryptionContextSize    = 28
)

// Size returns the entry's on-disk footprint, name+value rounded up to a
// 4-byte boundary the way xattr entries are packed.
func (e *XattrEntry) Size() int64 {
	return align(int64(4+len(e.Name)+int(e.ValueSize)), 4)
}

// IsEncryptionContext reports whether e is the fscrypt context entry C5
// searches parent/child directories for.
func (e *XattrEntry) IsEncryptionContext() bool {
	return e.NameIndex == EncryptionXattrNameIndex && string(e.Name) == EncryptionXattrName
}

// XattrValueCeiling returns the maximum total xattr payload size for an
// inode, depending on whether it also owns an external xattr block —
// InlineXattrSize alone when it doesn't, plus one block's worth (minus the
// trailing footer) when it does. This is the exact ceiling derivation
// original_source's fsck_chk_xattr uses (see SPEC_FULL.md §5).
func XattrValueCeiling(hasXattrNid bool) int64 {
	ceiling := int64(InlineXattrSize)
	if hasXattrNid {
		ceiling += BlockSize - 32 // footer-size reserved at block tail
	}
	return ceiling
}

package fsck

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/vorteil/f2fsck/pkg/f2fs"
)

// parseXattrEntries walks a concatenated inline+external xattr buffer,
// matching fsck_chk_xattr_entries: returns every entry up to the
// sentinel (a zero name_index/name_len pair) or the first entry that
// would run past the buffer, plus the offset that truncation happened at
// (len(buf) if none did).
func parseXattrEntries(buf []byte) (entries []*f2fs.XattrEntry, truncateAt int) {

	ofs := 0
	for ofs+4 <= len(buf) {
		nameIndex := buf[ofs]
		nameLen := buf[ofs+1]
		if nameIndex == 0 && nameLen == 0 {
			return entries, len(buf)
		}
		valueSize := binary.LittleEndian.Uint16(buf[ofs+2 : ofs+4])

		entrySize := 4 + int(nameLen) + int(valueSize)
		entrySize = int(align(int64(entrySize), 4))

		if ofs+entrySize > len(buf) {
			return entries, ofs
		}

		e := &f2fs.XattrEntry{
			NameIndex: nameIndex,
			NameLen:   nameLen,
			ValueSize: valueSize,
			Name:      buf[ofs+4 : ofs+4+int(nameLen)],
			Value:     buf[ofs+4+int(nameLen) : ofs+4+int(nameLen)+int(valueSize)],
		}
		entries = append(entries, e)
		ofs += entrySize
	}

	return entries, len(buf)
}

// CheckXattr implements C5's first step: validate the external xattr
// block (when present) via C3 with kind = xattr, detaching it under
// fix-on when it fails.
func (c *Context) CheckXattr(inode *f2fs.Inode) error {

	if inode.IXattrNid == 0 {
		return nil
	}

	_, err := c.SanityCheckNid(inode.IXattrNid, FileXattr, NodeXattr)
	if err != nil {
		if c.Config.FixOn {
			inode.IXattrNid = 0
		}
		return err
	}

	return nil
}

// xattrBuffer returns the concatenated inline+external xattr payload for
// an inode: the inline region inside the inode itself, followed by the
// external block's payload (minus its trailing footer) when i_xattr_nid
// is set.
func (c *Context) xattrBuffer(inode *f2fs.Inode) ([]byte, bool, error) {

	buf := make([]byte, 0, f2fs.InlineXattrSize+f2fs.BlockSize)

	if inode.HasInlineXattr() {
		inline := make([]byte, f2fs.InlineXattrSize)
		buf = append(buf, inline...)
	}

	hasExternal := inode.IXattrNid != 0
	if hasExternal {
		ni, err := c.Meta.GetNodeInfo(inode.IXattrNid)
		if err != nil {
			return nil, hasExternal, err
		}
		block := make([]byte, f2fs.BlockSize)
		if err := c.Device.ReadBlock(block, int64(ni.Blkaddr)); err != nil {
			return nil, hasExternal, err
		}
		buf = append(buf, block[:f2fs.BlockSize-footerSize]...)
	}

	return buf, hasExternal, nil
}

// CheckXattrEntries implements C5's second step: enumerate entries in the
// concatenated buffer and, when any entry overruns XattrValueCeiling or
// the buffer itself, truncate the stream at the offending offset and
// write the truncated buffer back. The bool return tells the caller
// whether it must also mark the inode need-fix.
func (c *Context) CheckXattrEntries(inode *f2fs.Inode) (bool, error) {

	buf, hasExternal, err := c.xattrBuffer(inode)
	if err != nil {
		return false, err
	}

	ceiling := f2fs.XattrValueCeiling(hasExternal)
	entries, truncateAt := parseXattrEntries(buf)
	overrunsBuffer := truncateAt < len(buf)

	var total int64
	for _, e := range entries {
		if total+e.Size() > ceiling {
			truncateAt = int(total)
			break
		}
		total += e.Size()
	}

	if truncateAt >= len(buf) {
		return false, nil
	}

	if overrunsBuffer {
		c.AddFault(NewFault(PrInvalidXattrOffset, "xattr entry stream overruns buffer"))
	} else {
		c.AddFault(NewFault(PrInvalidXattrOffset, "xattr entry exceeds value-size ceiling"))
	}
	if !c.Config.FixOn {
		return false, nil
	}

	for i := truncateAt; i < len(buf); i++ {
		buf[i] = 0
	}
	if err := c.writeXattrBuffer(inode, buf, hasExternal); err != nil {
		return false, err
	}

	return true, nil
}

// writeXattrBuffer splits buf back into its inline and external halves
// and writes each back, the reverse of xattrBuffer: the inline prefix
// into the inode's own inline xattr region, the remainder into the
// external xattr block (preserving its trailing footer).
func (c *Context) writeXattrBuffer(inode *f2fs.Inode, buf []byte, hasExternal bool) error {

	ofs := 0
	if inode.HasInlineXattr() {
		n := f2fs.InlineXattrSize
		if n > len(buf) {
			n = len(buf)
		}
		setInlineXattrBytes(inode, buf[:n])
		ofs = n
	}

	if !hasExternal {
		return nil
	}

	ni, err := c.Meta.GetNodeInfo(inode.IXattrNid)
	if err != nil {
		return err
	}
	block := make([]byte, f2fs.BlockSize)
	if err := c.Device.ReadBlock(block, int64(ni.Blkaddr)); err != nil {
		return err
	}
	limit := f2fs.BlockSize - footerSize
	n := copy(block[:limit], buf[ofs:])
	for i := n; i < limit; i++ {
		block[i] = 0
	}

	if c.Config.RO {
		return nil
	}
	return c.Device.WriteBlock(block, int64(ni.Blkaddr))
}

// findEncryptionXattr returns the verified fscrypt context entry among
// entries, if its CRC agrees with the declared header CRC.
func findEncryptionXattr(entries []*f2fs.XattrEntry, header *f2fs.XattrHeader) *f2fs.XattrEntry {
	for _, e := range entries {
		if !e.IsEncryptionContext() {
			continue
		}
		if crc32.ChecksumIEEE(e.Value) == header.HCtxCrc {
			return e
		}
	}
	return nil
}

// RebuildEncrypt implements C5's third/fourth steps: when an inode
// carries ENCRYPT_CORRUPT, search the parent's xattrs, then (for a
// directory) its children's, for a verified encryption context to copy,
// and on success mark ENCRYPT_FIXED and clear ENCRYPT_CORRUPT.
func (c *Context) RebuildEncrypt(inode *f2fs.Inode, parent *f2fs.Inode, childSource func() (*f2fs.Inode, *f2fs.XattrHeader, []*f2fs.XattrEntry, bool)) error {

	if !inode.IsEncryptCorrupt() {
		return nil
	}

	found := c.findCorrectEncryptXattr(parent, childSource)
	if found == nil {
		return NewFault(PrInvalidXattrOffset, "no verified encryption context found to rebuild from")
	}

	if c.Config.FixOn {
		c.rebuildEncryptInline(inode, found)
		inode.IXattrNid = 0
		inode.SetEncryptFixed()
	}

	return nil
}

// findCorrectEncryptXattr implements find_correct_encrypt_xattr: search
// the parent directory's xattrs first, then — if inode is itself a
// directory — its children's, for the first verified encryption entry.
func (c *Context) findCorrectEncryptXattr(parent *f2fs.Inode, childSource func() (*f2fs.Inode, *f2fs.XattrHeader, []*f2fs.XattrEntry, bool)) *f2fs.XattrEntry {

	if parent != nil {
		buf, hasExternal, err := c.xattrBuffer(parent)
		if err == nil {
			entries, _ := parseXattrEntries(buf)
			header := &f2fs.XattrHeader{}
			if len(buf) >= 12 {
				header.HCtxCrc = binary.LittleEndian.Uint32(buf[8:12])
			}
			_ = hasExternal
			if e := findEncryptionXattr(entries, header); e != nil {
				return e
			}
		}
	}

	if childSource == nil {
		return nil
	}

	for {
		child, header, entries, more := childSource()
		if child == nil {
			return nil
		}
		if !child.IsEncryptCorrupt() {
			if e := findEncryptionXattr(entries, header); e != nil {
				return e
			}
		}
		if !more {
			return nil
		}
	}
}

// xattrInlineHeaderSize is how much of the inline xattr region XattrHeader
// occupies: magic, refcount and h_ctx_crc, back to back (the reserved
// words trail it and are left zeroed).
const xattrInlineHeaderSize = 12

// inlineXattrBytes returns the raw bytes of inode's inline xattr region —
// the tail InlineXattrSize/4 words of i_addr.
func inlineXattrBytes(inode *f2fs.Inode) []byte {
	n := len(inode.IAddr) - f2fs.InlineXattrAddrOffset
	buf := make([]byte, n*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], inode.IAddr[f2fs.InlineXattrAddrOffset+i])
	}
	return buf
}

// setInlineXattrBytes writes data back into inode's inline xattr region,
// the reverse of inlineXattrBytes.
func setInlineXattrBytes(inode *f2fs.Inode, data []byte) {
	start := f2fs.InlineXattrAddrOffset
	n := len(inode.IAddr) - start
	for i := 0; i < n; i++ {
		if i*4+4 > len(data) {
			inode.IAddr[start+i] = 0
			continue
		}
		inode.IAddr[start+i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
}

// encodeXattrEntry packs one entry back into its on-disk name_index/
// name_len/value_size/name/value layout.
func encodeXattrEntry(e *f2fs.XattrEntry) []byte {
	buf := make([]byte, e.Size())
	buf[0] = e.NameIndex
	buf[1] = e.NameLen
	binary.LittleEndian.PutUint16(buf[2:4], e.ValueSize)
	copy(buf[4:], e.Name)
	copy(buf[4+len(e.Name):], e.Value)
	return buf
}

// rebuildEncryptInline implements replace_encrypt_xattr/append_encrypt_xattr/
// rebuild_encrypt_inline's three-tier strategy (§4.5.3): replace an
// existing (corrupt) context entry in place, append if there's free
// inline space and none exists yet, or rebuild the inline header from
// scratch — dropping every other inline entry — as a last resort. Every
// tier recomputes h_ctx_crc over the copied entry's value.
func (c *Context) rebuildEncryptInline(inode *f2fs.Inode, source *f2fs.XattrEntry) bool {

	inline := inlineXattrBytes(inode)

	hasHeader := len(inline) >= xattrInlineHeaderSize && binary.LittleEndian.Uint32(inline[0:4]) == f2fs.XattrMagic

	var entries []*f2fs.XattrEntry
	if hasHeader {
		entries, _ = parseXattrEntries(inline[xattrInlineHeaderSize:])
	}

	write := func(all []*f2fs.XattrEntry) bool {
		out := make([]byte, len(inline))
		binary.LittleEndian.PutUint32(out[0:4], f2fs.XattrMagic)
		binary.LittleEndian.PutUint32(out[4:8], 1)
		binary.LittleEndian.PutUint32(out[8:12], crc32.ChecksumIEEE(source.Value))

		ofs := xattrInlineHeaderSize
		for _, e := range all {
			b := encodeXattrEntry(e)
			if ofs+len(b) > len(out) {
				return false
			}
			copy(out[ofs:], b)
			ofs += len(b)
		}

		setInlineXattrBytes(inode, out)
		inode.Inline |= f2fs.InlineXattr
		return true
	}

	if hasHeader {
		existingIdx := -1
		var used int64
		for i, e := range entries {
			if e.IsEncryptionContext() {
				existingIdx = i
			}
			used += e.Size()
		}

		if existingIdx >= 0 {
			replaced := append([]*f2fs.XattrEntry{}, entries...)
			replaced[existingIdx] = source
			if write(replaced) {
				return true
			}
		} else if int64(xattrInlineHeaderSize)+used+source.Size() <= int64(len(inline)) {
			if write(append(append([]*f2fs.XattrEntry{}, entries...), source)) {
				return true
			}
		}
	}

	// Last resort: rebuild the inline header from scratch, keeping only
	// the copied context entry.
	return write([]*f2fs.XattrEntry{source})
}

package fsck

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/vorteil/f2fsck/pkg/f2fs"
)

// encodeInlineDentryForTest is the reverse of decodeInlineDentry: it packs
// an InlineDentryBlock back into the raw i_addr words an inode carries it
// in, for tests that need a directory inode with real inline dentry
// content rather than just a decoded view of one.
func encodeInlineDentryForTest(t *testing.T, idb *f2fs.InlineDentryBlock) [f2fs.AddrsPerInode]uint32 {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, idb); err != nil {
		t.Fatalf("encode inline dentry: %v", err)
	}
	raw := make([]byte, f2fs.AddrsPerInode*4)
	copy(raw, buf.Bytes())
	var addrs [f2fs.AddrsPerInode]uint32
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &addrs); err != nil {
		t.Fatalf("decode inline dentry back into addrs: %v", err)
	}
	return addrs
}

// TestRebuildEncryptFromChildXattr exercises the corrupt-fscrypt-context
// scenario: a directory inode carries ENCRYPT_CORRUPT, its parent has no
// xattrs at all, and its first child carries a verified encryption
// context in an external xattr block. C5 must copy that context inline,
// set ENCRYPT_FIXED, clear ENCRYPT_CORRUPT, and recompute h_ctx_crc.
func TestRebuildEncryptFromChildXattr(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)
	c.Config.FixOn = true

	const (
		parentNid = 5
		dirNid    = 10
		childNid  = 20
	)

	// Parent: plain and unencrypted, no xattrs.
	parentBlkaddr := int64(lo.MainBlkaddr + 1)
	md.nat[parentNid] = &f2fs.NatEntry{Ino: parentNid, Blkaddr: uint32(parentBlkaddr)}
	parentInode := &f2fs.Inode{Mode: 0x4000, ILinks: 2, Footer: f2fs.Footer{Nid: parentNid, Ino: parentNid}}
	parentBlock, err := encodeInode(parentInode)
	if err != nil {
		t.Fatalf("encode parent inode: %v", err)
	}
	dev.blocks[parentBlkaddr] = parentBlock

	// Child: a verified fscrypt context entry in its external xattr
	// block. A 12-byte dummy entry precedes it purely so the buffer's
	// byte 8..12 (where the header CRC is read from) doesn't alias the
	// real entry's own value bytes.
	value := make([]byte, f2fs.EncryptionContextSize)
	copy(value, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})
	wantCrc := crc32.ChecksumIEEE(value)

	xattrBuf := make([]byte, f2fs.BlockSize-footerSize)
	xattrBuf[0] = 0x01 // nameIndex, nonzero so it isn't read as the sentinel
	xattrBuf[1] = 8    // nameLen
	binary.LittleEndian.PutUint16(xattrBuf[2:4], 0)
	binary.LittleEndian.PutUint32(xattrBuf[8:12], wantCrc)

	ctxEntry := &f2fs.XattrEntry{
		NameIndex: f2fs.EncryptionXattrNameIndex,
		NameLen:   uint8(len(f2fs.EncryptionXattrName)),
		ValueSize: uint16(len(value)),
		Name:      []byte(f2fs.EncryptionXattrName),
		Value:     value,
	}
	copy(xattrBuf[12:], encodeXattrEntry(ctxEntry))

	childXattrNid := uint32(777)
	childXattrBlkaddr := int64(lo.MainBlkaddr + 2)
	md.nat[childXattrNid] = &f2fs.NatEntry{Ino: childNid, Blkaddr: uint32(childXattrBlkaddr)}
	childXattrBlock := make([]byte, f2fs.BlockSize)
	copy(childXattrBlock, xattrBuf)
	dev.blocks[childXattrBlkaddr] = childXattrBlock

	childBlkaddr := int64(lo.MainBlkaddr + 3)
	md.nat[childNid] = &f2fs.NatEntry{Ino: childNid, Blkaddr: uint32(childBlkaddr)}
	childInode := &f2fs.Inode{
		Mode:      0x8000,
		ILinks:    1,
		IXattrNid: childXattrNid,
		Footer:    f2fs.Footer{Nid: childNid, Ino: childNid},
	}
	childBlock, err := encodeInode(childInode)
	if err != nil {
		t.Fatalf("encode child inode: %v", err)
	}
	dev.blocks[childBlkaddr] = childBlock

	// The directory under test: ENCRYPT_CORRUPT, one inline-dentry child.
	idb := &f2fs.InlineDentryBlock{}
	f2fs.BitmapSet(idb.Bitmap[:], 0)
	idb.Entries[0] = f2fs.DirEntry{Ino: childNid, NameLen: 5, FileType: 1, Hash: f2fs.DentryHash("child")}
	copy(idb.Names[0][:], "child")

	dirInode := &f2fs.Inode{
		Mode:   0x4000,
		ILinks: 2,
		IPino:  parentNid,
		Inline: f2fs.InlineDentry,
		Advise: f2fs.EncryptCorruptFlag,
		IAddr:  encodeInlineDentryForTest(t, idb),
		Footer: f2fs.Footer{Nid: dirNid, Ino: dirNid},
	}

	dirBlkaddr := int64(lo.MainBlkaddr + 4)
	dirBlock, err := encodeInode(dirInode)
	if err != nil {
		t.Fatalf("encode dir inode: %v", err)
	}
	dev.blocks[dirBlkaddr] = dirBlock

	ni := &NodeInfo{
		Entry: &f2fs.NatEntry{Ino: dirNid, Blkaddr: uint32(dirBlkaddr)},
		Block: dirBlock,
	}

	var blkCnt int64
	if err := c.checkInodeNode(dirNid, FileDir, ni, &blkCnt, &ParentInfo{Nid: parentNid}); err != nil {
		t.Fatalf("checkInodeNode: %v", err)
	}

	got, err := decodeInode(dev.blocks[dirBlkaddr])
	if err != nil {
		t.Fatalf("decode written-back inode: %v", err)
	}

	if got.IsEncryptCorrupt() {
		t.Errorf("ENCRYPT_CORRUPT should have been cleared")
	}
	if got.Advise&f2fs.EncryptFixedFlag == 0 {
		t.Errorf("ENCRYPT_FIXED should have been set")
	}
	if got.IXattrNid != 0 {
		t.Errorf("external xattr block should be detached once rebuilt inline, got nid %d", got.IXattrNid)
	}

	inline := inlineXattrBytes(got)
	if binary.LittleEndian.Uint32(inline[0:4]) != f2fs.XattrMagic {
		t.Fatalf("inline xattr header magic not written")
	}
	if binary.LittleEndian.Uint32(inline[4:8]) != 1 {
		t.Errorf("inline xattr refcount should be 1")
	}

	entries, _ := parseXattrEntries(inline[xattrInlineHeaderSize:])
	if len(entries) != 1 || !entries[0].IsEncryptionContext() {
		t.Fatalf("expected the copied encryption context entry inline, got %+v", entries)
	}
	if !bytes.Equal(entries[0].Value, value) {
		t.Errorf("copied entry value mismatch: got %x want %x", entries[0].Value, value)
	}
	if binary.LittleEndian.Uint32(inline[8:12]) != wantCrc {
		t.Errorf("h_ctx_crc not recomputed over the copied value")
	}
}

// TestCheckXattrEntriesTruncatesOverrun exercises the second repair §4.5
// names: an entry stream that overruns the xattr buffer gets truncated at
// the offending offset, written back, and the inode marked need-fix.
func TestCheckXattrEntriesTruncatesOverrun(t *testing.T) {
	lo := testLayout()
	md := newFakeMetadata(lo)
	dev := newFakeDevice()
	c := newTestContext(lo, md, dev)
	c.Config.FixOn = true

	const xattrNid = 42
	blkaddr := int64(lo.MainBlkaddr + 1)
	md.nat[xattrNid] = &f2fs.NatEntry{Ino: 1, Blkaddr: uint32(blkaddr)}

	block := make([]byte, f2fs.BlockSize)
	// An entry that claims a value_size running past the buffer: this
	// must truncate at its starting offset rather than being parsed.
	block[0] = f2fs.EncryptionXattrNameIndex
	block[1] = 1
	binary.LittleEndian.PutUint16(block[2:4], 0xFFFF)
	dev.blocks[blkaddr] = block

	inode := &f2fs.Inode{IXattrNid: xattrNid}

	truncated, err := c.CheckXattrEntries(inode)
	if err != nil {
		t.Fatalf("CheckXattrEntries: %v", err)
	}
	if !truncated {
		t.Fatalf("expected the overrunning entry stream to be truncated")
	}

	written := dev.blocks[blkaddr]
	if written[0] != 0 || written[1] != 0 {
		t.Errorf("truncated entry should be zeroed on disk, got %v %v", written[0], written[1])
	}
}

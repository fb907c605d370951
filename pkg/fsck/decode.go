package fsck

import (
	"bytes"
	"encoding/binary"

	"github.com/vorteil/f2fsck/pkg/f2fs"
)

// footerSize is the encoded size of f2fs.Footer, used to locate it at the
// tail of any node block.
var footerSize = binary.Size(f2fs.Footer{})

// align rounds a up to the nearest multiple of b, mirroring f2fs's own
// unexported helper of the same name for the xattr entry-size rounding C5
// needs.
func align(a, b int64) int64 {
	return ((a + b - 1) / b) * b
}

func decodeFooterAt(block []byte, off int) (*f2fs.Footer, error) {
	footer := &f2fs.Footer{}
	if err := binary.Read(bytes.NewReader(block[off:]), binary.LittleEndian, footer); err != nil {
		return nil, err
	}
	return footer, nil
}

// decodeInode decodes a raw 4 KiB block as an inode node.
func decodeInode(block []byte) (*f2fs.Inode, error) {
	inode := &f2fs.Inode{}
	if err := binary.Read(bytes.NewReader(block), binary.LittleEndian, inode); err != nil {
		return nil, err
	}
	return inode, nil
}

// decodeDirectNode decodes a raw 4 KiB block as a direct node.
func decodeDirectNode(block []byte) (*f2fs.DirectNode, error) {
	dn := &f2fs.DirectNode{}
	if err := binary.Read(bytes.NewReader(block), binary.LittleEndian, dn); err != nil {
		return nil, err
	}
	return dn, nil
}

// decodeIndirectNode decodes a raw 4 KiB block as an indirect node.
func decodeIndirectNode(block []byte) (*f2fs.IndirectNode, error) {
	in := &f2fs.IndirectNode{}
	if err := binary.Read(bytes.NewReader(block), binary.LittleEndian, in); err != nil {
		return nil, err
	}
	return in, nil
}

// decodeInlineDentry reinterprets an inode's i_addr array as an inline
// dentry block, the same overlay INLINE_DENTRY inodes use on disk instead
// of storing a direct block address there.
func decodeInlineDentry(inode *f2fs.Inode) (*f2fs.InlineDentryBlock, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, inode.IAddr); err != nil {
		return nil, err
	}
	idb := &f2fs.InlineDentryBlock{}
	if err := binary.Read(bytes.NewReader(buf.Bytes()), binary.LittleEndian, idb); err != nil {
		return nil, err
	}
	return idb, nil
}

// decodeDentryBlock decodes a raw 4 KiB block as a dentry block.
func decodeDentryBlock(block []byte) (*f2fs.DentryBlock, error) {
	db := &f2fs.DentryBlock{}
	if err := binary.Read(bytes.NewReader(block), binary.LittleEndian, db); err != nil {
		return nil, err
	}
	return db, nil
}

// encodeInode serializes an inode back to a 4 KiB block for writeback.
func encodeInode(inode *f2fs.Inode) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, inode); err != nil {
		return nil, err
	}
	block := make([]byte, f2fs.BlockSize)
	copy(block, buf.Bytes())
	return block, nil
}

// encodeDentryBlock serializes a dentry block back to 4 KiB for writeback.
func encodeDentryBlock(db *f2fs.DentryBlock) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, db); err != nil {
		return nil, err
	}
	block := make([]byte, f2fs.BlockSize)
	copy(block, buf.Bytes())
	return block, nil
}

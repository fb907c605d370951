package fsck

import (
	"github.com/vorteil/f2fsck/pkg/f2fs"
	"github.com/vorteil/f2fsck/pkg/meta"
)

// NodeInfo is what SanityCheckNid returns on success: the validated NAT
// entry plus the decoded node footer, everything the caller needs without
// re-reading either.
type NodeInfo struct {
	Nat    *meta.SegEntry
	Entry  *f2fs.NatEntry
	Footer f2fs.Footer
	Block  []byte
}

// inodeModeForFileKind maps a FileKind to the S_IFMT bits
// __check_inode_mode compares the inode's mode against (supplemented from
// original_source, see SPEC_FULL.md §5).
var inodeModeForFileKind = map[FileKind]uint16{
	FileDir:     0x4000,
	FileReg:     0x8000,
	FileSymlink: 0xA000,
	FileChrdev:  0x2000,
	FileBlkdev:  0x6000,
	FileFifo:    0x1000,
	FileSock:    0xC000,
}

// FileKindForFtype maps a directory entry's on-disk file_type tag back to
// a FileKind, the other half of the __check_inode_mode cross-check.
func FileKindForFtype(ft uint8) (FileKind, bool) {
	switch ft {
	case 1:
		return FileReg, true
	case 2:
		return FileDir, true
	case 3:
		return FileChrdev, true
	case 4:
		return FileBlkdev, true
	case 5:
		return FileFifo, true
	case 6:
		return FileSock, true
	case 7:
		return FileSymlink, true
	default:
		return 0, false
	}
}

// checkInodeMode implements __check_inode_mode (§4.3(j), supplemented):
// cross-checks an inode's mode bits against the file_type tag its parent
// dentry recorded it under.
func checkInodeMode(mode uint16, kind FileKind) bool {
	want, ok := inodeModeForFileKind[kind]
	if !ok {
		return true
	}
	return mode&0xF000 == want
}

// SanityCheckNid implements C3's single entry point. It performs, in
// order, every step §4.3 lists, returning on the first failure with the
// fault already recorded.
func (c *Context) SanityCheckNid(nid uint32, fileKind FileKind, nodeKind NodeKind) (*NodeInfo, error) {

	lo := c.Meta.Layout()

	// (a) nid within valid NAT range.
	if nid == 0 || int64(nid) >= int64(lo.TotalSegs)*lo.BlocksPerSeg {
		err := NewFaultNid(PrInvalidNid, nid, "nid outside valid NAT range")
		c.AddFault(err)
		return nil, err
	}

	entry, err := c.Meta.GetNodeInfo(nid)
	if err != nil {
		return nil, err
	}

	// (b) NAT entry's ino != 0.
	if entry.Ino == 0 {
		err := NewFaultNid(PrInoIsZero, nid, "nat entry ino is zero")
		c.AddFault(err)
		return nil, err
	}

	// (c) NAT block address != NEW_ADDR sentinel.
	if entry.Blkaddr == f2fs.NewAddr {
		err := NewFaultNid(PrBlkaddrIsNewAddr, nid, "nat blkaddr is NEW_ADDR")
		c.AddFault(err)
		return nil, err
	}

	// (d) address within main area.
	if !lo.IsValidBlkaddr(int64(entry.Blkaddr)) {
		err := NewFaultNid(PrNodeInvalidBlkaddr, nid, "nat blkaddr outside main area")
		c.AddFault(err)
		return nil, err
	}

	// (e) read the block.
	buf := make([]byte, f2fs.BlockSize)
	if err := c.Device.ReadBlock(buf, int64(entry.Blkaddr)); err != nil {
		return nil, err
	}

	footer, err := decodeFooter(buf)
	if err != nil {
		return nil, err
	}

	// (f) footer consistency with expected node kind.
	isInode := footer.IsInode()
	if nodeKind == NodeInode && !isInode {
		err := NewFaultNid(PrInodeFooterInoNotEqualNid, nid, "expected inode, footer disagrees")
		c.AddFault(err)
		return nil, err
	}
	if nodeKind != NodeInode && isInode {
		err := NewFaultNid(PrNonInodeFooterInoEqualNid, nid, "expected non-inode, footer disagrees")
		c.AddFault(err)
		return nil, err
	}

	// (g) footer ino == NAT.ino.
	if footer.Ino != entry.Ino {
		err := NewFaultNid(PrNodeInoNotEqualFooterIno, nid, "footer ino disagrees with nat ino")
		c.AddFault(err)
		return nil, err
	}
	if footer.Nid != nid {
		err := NewFaultNid(PrNodeNidNotEqualFooterNid, nid, "footer nid disagrees with requested nid")
		c.AddFault(err)
		return nil, err
	}

	// (h) xattr-specific offset bits when applicable.
	if nodeKind == NodeXattr {
		if footer.OfsInNode() != 0 {
			err := NewFaultNid(PrInvalidXattrOffset, nid, "xattr node has nonzero offset bits")
			c.AddFault(err)
			return nil, err
		}
	}

	// (i) for directories/xattr nodes, duplicate-visit check via C1.
	if fileKind == FileDir || nodeKind == NodeXattr {
		if c.NatReached(nid) {
			err := NewFaultNid(PrDuplicateOrphanOrXattrNid, nid, "nid already reached")
			c.AddFault(err)
			return nil, err
		}
	}

	// (j) inode-mode vs. directory-entry file_type agreement
	// (supplemented, see SPEC_FULL.md §5).
	if isInode {
		inode, decErr := decodeInode(buf)
		if decErr == nil && fileKind != FileOrphan && fileKind != FileXattr && fileKind != FileMax {
			if !checkInodeMode(inode.Mode, fileKind) {
				c.AddFault(NewFaultNid(PrInodeMismatchMode, nid, "inode mode disagrees with dentry file_type"))
			}
		}
	}

	// (k) mark NAT's shadow bit "reached".
	c.ClearNat(nid)

	// (l) assert SIT coverage.
	if !c.TestSit(int64(entry.Blkaddr)) {
		err := NewFaultNid(PrNatBlkaddrOutSitBitmap, nid, "nat blkaddr not covered by sit")
		c.AddFault(err)
		return nil, err
	}

	se, err := c.Meta.GetSegEntry(lo.GetSegNo(int64(entry.Blkaddr)))
	if err != nil {
		return nil, err
	}

	return &NodeInfo{Nat: se, Entry: entry, Footer: *footer, Block: buf}, nil
}

func decodeFooter(block []byte) (*f2fs.Footer, error) {
	// The footer trails the block; for both node and inode payloads it
	// sits at a fixed offset from the end matching struct node_footer.
	off := len(block) - footerSize
	return decodeFooterAt(block, off)
}

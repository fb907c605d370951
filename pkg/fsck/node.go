package fsck

import (
	"encoding/binary"

	"github.com/vorteil/f2fsck/pkg/f2fs"
)

// ParentInfo carries the referring context C7 needs when recursing into a
// child node: the parent nid (for SSA validation), the child's offset
// within that parent, and the version tag the parent recorded.
type ParentInfo struct {
	Nid       uint32
	OfsInNode uint16
	Version   uint8
}

// extentMap is the per-inode transient extent-coverage map §3 names: one
// bit per block within the inode's declared extent, used to detect
// duplicate coverage and leftover unreferenced blocks (§4.7(7)).
type extentMap struct {
	base      int64
	len       int64
	bitmap    []byte
	remaining int64
	fail      bool
}

func newExtentMap(ext f2fs.Extent) *extentMap {
	if ext.Len <= 0 {
		return nil
	}
	return &extentMap{
		base:      ext.Blkaddr,
		len:       ext.Len,
		bitmap:    f2fs.NewBitmap(ext.Len),
		remaining: ext.Len,
	}
}

func (m *extentMap) cover(blkaddr int64) {
	if m == nil {
		return
	}
	ofs := blkaddr - m.base
	if ofs < 0 || ofs >= m.len {
		return
	}
	if f2fs.BitmapSet(m.bitmap, ofs) {
		m.fail = true
		return
	}
	m.remaining--
}

func (m *extentMap) bad() bool {
	if m == nil {
		return false
	}
	return m.fail || m.remaining != 0
}

// CheckNode implements C7's entry point: check_node(nid, expected_file_kind,
// expected_node_kind, blk_cnt, parent_info, inode_extent).
//
// blkCnt accumulates the block count the caller compares against i_blocks
// once the subtree under an inode completes; it is a pointer so recursive
// calls share the same running total.
func (c *Context) CheckNode(nid uint32, fileKind FileKind, nodeKind NodeKind, blkCnt *int64, parent *ParentInfo) error {

	ni, err := c.SanityCheckNid(nid, fileKind, nodeKind)
	if err != nil {
		return err
	}

	if valid, ssaErr := c.ValidSsaNodeBlk(nid, int64(ni.Entry.Blkaddr)); ssaErr != nil {
		return ssaErr
	} else if !valid {
		return NewFaultNid(PrInvalidSumNodeBlock, nid, "node ssa validation failed")
	}

	if nodeKind == NodeInode {
		return c.checkInodeNode(nid, fileKind, ni, blkCnt, parent)
	}

	segType := f2fs.CursegWarmNode
	if nodeKind == NodeIndirect || nodeKind == NodeDoubleIndirect {
		segType = f2fs.CursegColdNode
	}

	alreadyVisited := c.TestMain(int64(ni.Entry.Blkaddr))

	if !alreadyVisited {
		if _, setErr := c.SetMain(int64(ni.Entry.Blkaddr), segType); setErr != nil {
			return setErr
		}
		c.Counters.ValidNodeCount++
		if blkCnt != nil {
			*blkCnt++
		}
	}

	switch nodeKind {
	case NodeDirect:
		return c.checkDirectNode(ni.Block, nid, blkCnt)
	case NodeIndirect:
		return c.checkIndirectNode(ni.Block, blkCnt, 1)
	case NodeDoubleIndirect:
		return c.checkIndirectNode(ni.Block, blkCnt, 2)
	}

	return nil
}

// checkInodeNode implements §4.7 steps 1-8 for a validated inode block.
func (c *Context) checkInodeNode(nid uint32, fileKind FileKind, ni *NodeInfo, blkCnt *int64, parent *ParentInfo) error {

	inode, err := decodeInode(ni.Block)
	if err != nil {
		return err
	}

	alreadyVisited := c.TestMain(int64(ni.Entry.Blkaddr))
	segType := f2fs.CursegHotNode
	if !inode.IsDir() {
		segType = f2fs.CursegWarmNode
	}

	if !alreadyVisited {
		if _, setErr := c.SetMain(int64(ni.Entry.Blkaddr), segType); setErr != nil {
			return setErr
		}
		c.Counters.ValidInodeCount++
		c.Counters.ValidNodeCount++
	}

	needFix := false

	// Step 2: hard-link bookkeeping for files with i_links > 1.
	if inode.IsRegular() && inode.ILinks > 1 {
		if !alreadyVisited {
			c.HardLinks.Open(nid, inode.ILinks)
		} else {
			if ok := c.HardLinks.Refer(nid); !ok {
				c.AddFault(NewFaultNid(PrHardLinkNumIsError, nid, "dentry referral with no open hard-link record"))
				if c.Config.FixOn {
					inode.ILinks++
					needFix = true
				}
			}
		}
	}

	// Orphan inodes must have i_links == 0 (§4.7, scenario 6).
	if fileKind == FileOrphan && inode.ILinks != 0 {
		c.AddFault(NewFaultNid(PrOrphanInodeHasILinks, nid, "orphan inode has nonzero i_links"))
		if c.Config.FixOn {
			inode.ILinks = 0
			needFix = true
		}
	}

	// Step 3: xattr/encryption.
	if xerr := c.CheckXattr(inode); xerr != nil {
		if c.Config.FixOn {
			needFix = true
		}
	}
	if truncated, xerr := c.CheckXattrEntries(inode); xerr == nil && truncated {
		needFix = true
	}

	if inode.IsEncryptCorrupt() {
		var parentInode *f2fs.Inode
		if parent != nil && parent.Nid != 0 {
			parentInode, _ = c.loadInode(parent.Nid)
		}
		if rebErr := c.RebuildEncrypt(inode, parentInode, c.childEncryptSource(inode)); rebErr != nil {
			c.AddFault(NewFaultNid(PrInvalidXattrOffset, nid, "no verified encryption context found to rebuild from"))
		} else if c.Config.FixOn {
			needFix = true
		}
	}

	// Step 4: inline-data consistency.
	if inode.HasInlineData() {
		if inode.IAddr[0] != 0 {
			c.AddFault(NewFaultNid(PrInlineDataAddr0NotZero, nid, "inline-data inode has nonzero addr[0]"))
			if c.Config.FixOn {
				inode.IAddr[0] = 0
				needFix = true
			}
		}
		if !inode.DataExists() {
			c.AddFault(NewFaultNid(PrInlineDataInexistence, nid, "inline-data flag set without DATA_EXIST"))
			if c.Config.FixOn {
				inode.Inline |= f2fs.DataExist
				needFix = true
			}
		}
	}

	var localBlkCnt int64
	if blkCnt == nil {
		blkCnt = &localBlkCnt
	}

	var result *DentryCheckResult

	if inode.IsDir() {
		parentIno := nid
		grandparentIno := inode.IPino
		rootIno := c.Meta.Layout().RootIno
		if inode.HasInlineDentry() {
			// Step 5: inline-dentry inodes skip all external blocks.
			result = c.checkInlineDentry(inode, nid, parentIno, grandparentIno, rootIno)
		} else {
			// Step 6: direct addrs, then node-id slots. The inline-xattr
			// magic is not checked here.
			result = c.walkDirectoryBlocks(inode, nid, parentIno, grandparentIno, rootIno, blkCnt)
		}

		if result != nil {
			if result.DotCount < 2 {
				inode.Inline |= f2fs.InlineDots
			}
			wantLinks := uint32(2 + result.SubDirs)
			if inode.ILinks != wantLinks {
				c.AddFault(NewFaultNid(PrInvalidILinks, nid, "directory i_links disagrees with observed subdirectory count"))
				if c.Config.FixOn {
					inode.ILinks = wantLinks
					needFix = true
				}
			}
		}
	} else if !inode.HasInlineData() {
		// Step 6 continued: regular files/symlinks without inline data
		// still walk their direct addrs and node-id slots.
		c.walkFileBlocks(inode, nid, blkCnt)
	}

	// Symlinks with i_blocks > 0 and i_size == 0: restore i_size.
	if inode.IsSymlink() && inode.IBlocks > 0 && inode.ISize == 0 {
		if c.Config.FixOn {
			inode.ISize = inode.IBlocks * f2fs.BlockSize
			needFix = true
		} else {
			c.AddFault(NewFaultNid(PrInvalidExtentValue, nid, "symlink has zero i_size with nonzero i_blocks"))
		}
	}

	// Step 7: extent-coverage map.
	em := newExtentMap(inode.IExt)
	if em != nil {
		c.walkExtentCoverage(inode, em)
		if em.bad() {
			c.AddFault(NewFaultNid(PrInvalidExtentValue, nid, "extent coverage mismatch"))
			if c.Config.FixOn {
				inode.IExt.Len = 0
				needFix = true
			}
		}
	}

	// Step 8: i_blocks reconciliation.
	if inode.IBlocks != uint64(*blkCnt)+1 {
		c.AddFault(NewFaultNid(PrInvalidIBlocks, nid, "i_blocks disagrees with observed block count"))
		if c.Config.FixOn {
			inode.IBlocks = uint64(*blkCnt) + 1
			needFix = true
		}
	}

	if needFix && c.Config.FixOn && !c.Config.RO {
		block, encErr := encodeInode(inode)
		if encErr == nil {
			_ = c.Device.WriteBlock(block, int64(ni.Entry.Blkaddr))
		}
	}

	return nil
}

// loadInode reads and decodes the inode currently addressed by nid, for
// callers (C5's encryption rebuild) that need a fully decoded parent
// inode rather than just its nid.
func (c *Context) loadInode(nid uint32) (*f2fs.Inode, error) {
	ni, err := c.Meta.GetNodeInfo(nid)
	if err != nil {
		return nil, err
	}
	block := make([]byte, f2fs.BlockSize)
	if err := c.Device.ReadBlock(block, int64(ni.Blkaddr)); err != nil {
		return nil, err
	}
	return decodeInode(block)
}

// collectChildNids returns every child inode number recorded in a
// directory inode's own dentries, without performing any consistency
// checks itself — it only seeds RebuildEncrypt's child-xattr search.
func (c *Context) collectChildNids(inode *f2fs.Inode) []uint32 {
	if !inode.IsDir() {
		return nil
	}

	var out []uint32
	collect := func(bitmap []byte, entries []f2fs.DirEntry, names [][f2fs.SlotLen]byte) {
		for _, s := range decodeSlots(bitmap, entries, names) {
			if s.Name == "." || s.Name == ".." {
				continue
			}
			if s.Entry.Ino != 0 {
				out = append(out, s.Entry.Ino)
			}
		}
	}

	if inode.HasInlineDentry() {
		if idb, err := decodeInlineDentry(inode); err == nil {
			collect(idb.Bitmap[:], idb.Entries[:], idb.Names[:])
		}
		return out
	}

	for _, addr := range inode.IAddr {
		if addr == 0 {
			continue
		}
		block := make([]byte, f2fs.BlockSize)
		if err := c.Device.ReadBlock(block, int64(addr)); err != nil {
			continue
		}
		db, err := decodeDentryBlock(block)
		if err != nil {
			continue
		}
		collect(db.Bitmap[:], db.Entries[:], db.Names[:])
	}

	return out
}

// childEncryptSource builds the childSource callback RebuildEncrypt needs
// when inode is a directory: one call per child, each returning that
// child's decoded inode, xattr header and entries, until none remain.
func (c *Context) childEncryptSource(inode *f2fs.Inode) func() (*f2fs.Inode, *f2fs.XattrHeader, []*f2fs.XattrEntry, bool) {
	if !inode.IsDir() {
		return nil
	}

	nids := c.collectChildNids(inode)
	i := 0

	return func() (*f2fs.Inode, *f2fs.XattrHeader, []*f2fs.XattrEntry, bool) {
		for i < len(nids) {
			nid := nids[i]
			i++

			child, err := c.loadInode(nid)
			if err != nil {
				continue
			}
			buf, _, err := c.xattrBuffer(child)
			if err != nil {
				continue
			}
			entries, _ := parseXattrEntries(buf)
			header := &f2fs.XattrHeader{}
			if len(buf) >= 12 {
				header.HCtxCrc = binary.LittleEndian.Uint32(buf[8:12])
			}
			return child, header, entries, i < len(nids)
		}
		return nil, nil, nil, false
	}
}

// walkDirectoryBlocks implements the non-inline half of step 6 for a
// directory inode: the direct address array (each entry routed through
// the data-block checker, which recurses into C6 for directory data) and
// the five node-id slots. It does not check the inline-xattr magic.
func (c *Context) walkDirectoryBlocks(inode *f2fs.Inode, nid, parentIno, grandparentIno, rootIno uint32, blkCnt *int64) *DentryCheckResult {

	agg := &DentryCheckResult{}

	for i, addr := range inode.IAddr {
		if addr == 0 {
			continue
		}
		r := c.checkDataBlock(int64(addr), nid, uint16(i), true, parentIno, grandparentIno, rootIno)
		if r != nil {
			agg.ChildFiles += r.ChildFiles
			agg.SubDirs += r.SubDirs
			agg.DotCount += r.DotCount
		}
		*blkCnt++
	}

	for slot, childNid := range inode.Nid {
		if childNid == 0 {
			continue
		}
		kind := NodeDirect
		switch slot {
		case NidIndirect1, NidIndirect2:
			kind = NodeIndirect
		case NidDoubleIndirect:
			kind = NodeDoubleIndirect
		}
		_ = c.CheckNode(childNid, FileDir, kind, blkCnt, &ParentInfo{Nid: nid, OfsInNode: uint16(slot)})
	}

	return agg
}

// walkFileBlocks is walkDirectoryBlocks's counterpart for non-directory,
// non-inline-data inodes: the same direct-address and node-id slot walk,
// without dentry recursion.
func (c *Context) walkFileBlocks(inode *f2fs.Inode, nid uint32, blkCnt *int64) {
	for i, addr := range inode.IAddr {
		if addr == 0 {
			continue
		}
		c.checkDataBlock(int64(addr), nid, uint16(i), false, 0, 0, 0)
		*blkCnt++
	}
	for slot, childNid := range inode.Nid {
		if childNid == 0 {
			continue
		}
		kind := NodeDirect
		switch slot {
		case NidIndirect1, NidIndirect2:
			kind = NodeIndirect
		case NidDoubleIndirect:
			kind = NodeDoubleIndirect
		}
		_ = c.CheckNode(childNid, FileReg, kind, blkCnt, &ParentInfo{Nid: nid, OfsInNode: uint16(slot)})
	}
}

func (c *Context) walkExtentCoverage(inode *f2fs.Inode, em *extentMap) {
	for _, addr := range inode.IAddr {
		if addr != 0 {
			em.cover(int64(addr))
		}
	}
}

// checkInlineDentry implements step 5: C6 over the embedded payload only.
func (c *Context) checkInlineDentry(inode *f2fs.Inode, nid, parentIno, grandparentIno, rootIno uint32) *DentryCheckResult {
	idb, err := decodeInlineDentry(inode)
	if err != nil {
		c.AddFault(NewFaultNid(PrInvalidInlineDentry, nid, "failed to decode inline dentry payload"))
		return nil
	}
	result, _ := c.CheckDentries(idb.Bitmap[:], idb.Entries[:], idb.Names[:], parentIno, grandparentIno, rootIno, func(ino uint32, isDir bool) bool {
		var blk int64
		kind := FileReg
		if isDir {
			kind = FileDir
		}
		return c.CheckNode(ino, kind, NodeInode, &blk, &ParentInfo{Nid: nid}) == nil
	})
	return result
}

// checkDirectNode implements the recursion C7 performs for NodeDirect:
// every non-zero address in the block goes through the data-block
// checker (§4.8).
func (c *Context) checkDirectNode(block []byte, parentNid uint32, blkCnt *int64) error {
	dn, err := decodeDirectNode(block)
	if err != nil {
		return err
	}
	for i, addr := range dn.Addr {
		if addr == 0 {
			continue
		}
		c.checkDataBlock(int64(addr), parentNid, uint16(i), false, 0, 0, 0)
		if blkCnt != nil {
			*blkCnt++
		}
	}
	return nil
}

// checkIndirectNode implements the recursion C7 performs for NodeIndirect
// and NodeDoubleIndirect: each nonzero nid recurses one level shallower
// (depth counts remaining levels until a direct node is reached).
func (c *Context) checkIndirectNode(block []byte, blkCnt *int64, depth int) error {
	in, err := decodeIndirectNode(block)
	if err != nil {
		return err
	}
	for _, nid := range in.Nid {
		if nid == 0 {
			continue
		}
		kind := NodeDirect
		if depth > 1 {
			kind = NodeIndirect
		}
		_ = c.CheckNode(nid, FileReg, kind, blkCnt, &ParentInfo{Nid: in.Footer.Nid})
	}
	return nil
}

// checkDataBlock implements §4.8's data-block checker. NEW_ADDR only
// increments the valid-block counter; otherwise it validates address
// range, SSA, SIT coverage and main-bitmap duplication, and — for
// directory blocks — recurses into C6.
func (c *Context) checkDataBlock(blkaddr int64, parentNid uint32, ofsInNode uint16, isDir bool, parentIno, grandparentIno, rootIno uint32) *DentryCheckResult {

	if blkaddr == f2fs.NewAddr {
		c.Counters.ValidBlockCount++
		return nil
	}

	lo := c.Meta.Layout()
	if !lo.IsValidBlkaddr(blkaddr) {
		c.AddFault(NewFaultBlk(PrNodeInvalidBlkaddr, blkaddr, "data block address outside main area"))
		return nil
	}

	valid, err := c.ValidSsaDataBlk(blkaddr, parentNid, 0, ofsInNode)
	if err != nil || !valid {
		c.AddFault(NewFaultBlk(PrInvalidSumDataBlock, blkaddr, "data block ssa validation failed"))
		return nil
	}

	if !c.TestSit(blkaddr) {
		c.AddFault(NewFaultBlk(PrNatBlkaddrOutSitBitmap, blkaddr, "data block not covered by sit"))
		return nil
	}

	segType := f2fs.CursegWarmData
	if isDir {
		segType = f2fs.CursegHotData
	}
	dup, err := c.SetMain(blkaddr, segType)
	if err != nil {
		return nil
	}
	if dup {
		return nil
	}

	if isDir {
		block := make([]byte, f2fs.BlockSize)
		if err := c.Device.ReadBlock(block, blkaddr); err != nil {
			return nil
		}
		db, err := decodeDentryBlock(block)
		if err != nil {
			return nil
		}
		result, _ := c.CheckDentries(db.Bitmap[:], db.Entries[:], db.Names[:], parentIno, grandparentIno, rootIno, func(ino uint32, childIsDir bool) bool {
			var blk int64
			kind := FileReg
			if childIsDir {
				kind = FileDir
			}
			return c.CheckNode(ino, kind, NodeInode, &blk, &ParentInfo{Nid: parentNid}) == nil
		})
		return result
	}

	return nil
}

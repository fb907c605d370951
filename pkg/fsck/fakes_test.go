package fsck

import (
	"fmt"

	"github.com/vorteil/f2fsck/pkg/f2fs"
	"github.com/vorteil/f2fsck/pkg/meta"
)

// fakeDevice is a minimal device.Device backed by a block-indexed map, just
// enough surface for the Context methods under test to read blocks they
// were handed.
type fakeDevice struct {
	blocks map[int64][]byte
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{blocks: make(map[int64][]byte)}
}

func (d *fakeDevice) ReadBlock(buf []byte, blkaddr int64) error {
	b, ok := d.blocks[blkaddr]
	if !ok {
		return fmt.Errorf("fakeDevice: no block at %d", blkaddr)
	}
	copy(buf, b)
	return nil
}

func (d *fakeDevice) WriteBlock(buf []byte, blkaddr int64) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.blocks[blkaddr] = cp
	return nil
}

func (d *fakeDevice) ReadaBlock(blkaddr int64) error { return nil }
func (d *fakeDevice) ReadOnly() bool                 { return false }

// fakeMetadata implements meta.Metadata with just enough behavior — a
// layout, a NAT table and a SIT segment table — for the C1/C3/C5 unit
// tests; every other method returns a zero value, except GetSumBlock,
// which returns an error.
type fakeMetadata struct {
	lo  *f2fs.Layout
	nat map[uint32]*f2fs.NatEntry
	seg map[int64]*meta.SegEntry
}

func newFakeMetadata(lo *f2fs.Layout) *fakeMetadata {
	return &fakeMetadata{
		lo:  lo,
		nat: make(map[uint32]*f2fs.NatEntry),
		seg: make(map[int64]*meta.SegEntry),
	}
}

func (m *fakeMetadata) Superblock() *f2fs.Superblock { return nil }
func (m *fakeMetadata) Checkpoint() *f2fs.Checkpoint { return nil }
func (m *fakeMetadata) Layout() *f2fs.Layout         { return m.lo }

func (m *fakeMetadata) GetNodeInfo(nid uint32) (*f2fs.NatEntry, error) {
	e, ok := m.nat[nid]
	if !ok {
		return nil, fmt.Errorf("fakeMetadata: no nat entry for nid %d", nid)
	}
	return e, nil
}

func (m *fakeMetadata) GetSumBlock(segno int64) (*meta.SumEntry, error) {
	return nil, fmt.Errorf("fakeMetadata: GetSumBlock not implemented")
}

func (m *fakeMetadata) GetSegEntry(segno int64) (*meta.SegEntry, error) {
	se, ok := m.seg[segno]
	if !ok {
		se = &meta.SegEntry{Type: f2fs.NoCheckType}
		m.seg[segno] = se
	}
	return se, nil
}

func (m *fakeMetadata) BuildNatAreaBitmap() ([]byte, uint32, error) {
	return f2fs.NewBitmap(int64(len(m.nat))), uint32(len(m.nat)), nil
}
func (m *fakeMetadata) BuildSitAreaBitmap() ([]byte, error) {
	return f2fs.NewBitmap(m.lo.TotalSegs * m.lo.BlocksPerSeg), nil
}

func (m *fakeMetadata) MoveCursegInfo() error                        { return nil }
func (m *fakeMetadata) WriteCursegInfo() error                       { return nil }
func (m *fakeMetadata) RewriteSitAreaBitmap(mainBitmap []byte) error { return nil }
func (m *fakeMetadata) WriteCheckpoint(cp *f2fs.Checkpoint) error    { return nil }
func (m *fakeMetadata) NullifyNatEntry(nid uint32) error             { return nil }
func (m *fakeMetadata) ClearExtraFlag(nid uint32) error              { return nil }

func testLayout() *f2fs.Layout {
	return &f2fs.Layout{
		BlocksPerSeg: 512,
		TotalSegs:    16,
		MainBlkaddr:  1000,
	}
}

// buildInodeBlock encodes a minimal inode node block (footer trailing)
// suitable for fakeDevice to hand back from ReadBlock.
func buildInodeBlock(nid, ino uint32, mode uint16) []byte {
	inode := &f2fs.Inode{
		Mode:   mode,
		ILinks: 1,
		Footer: f2fs.Footer{Nid: nid, Ino: ino},
	}
	block, err := encodeInode(inode)
	if err != nil {
		panic(err)
	}
	return block
}

// Package meta is the metadata collaborator §6 names: the loader that
// turns a raw device into superblock/checkpoint/NAT/SIT/SSA structures and
// the handful of segment-manager routines (move_curseg_info,
// rewrite_sit_area_bitmap, write_checkpoint, nullify_nat_entry, ...) that
// sit between the checker and the device. The checker never parses these
// areas itself — it only calls through this collaborator, the same
// separation pkg/vdecompiler/fs.go draws between "decode the superblock"
// and "resolve an inode out of it".
package meta

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/vorteil/f2fsck/pkg/device"
	"github.com/vorteil/f2fsck/pkg/f2fs"
)

// SegEntry is what get_seg_entry returns: a segment's current type, the
// type SIT originally recorded for it, its valid-block count, and its
// per-block validity bitmap.
type SegEntry struct {
	Type        f2fs.SegType
	OrigType    f2fs.SegType
	ValidBlocks int
	ValidMap    [f2fs.SitVBlockMapSizeInBytes]byte
}

// SumEntry is what get_sum_block returns: the decoded summary block plus
// whether it was freshly allocated by the loader (so the caller knows
// whether it owns the buffer and must free/drop it, per §5's scoped-
// acquisition discipline) and the segment's SIT type.
type SumEntry struct {
	Block *f2fs.SummaryBlock
	Fresh bool
	Type  f2fs.SegType
}

// Metadata is the collaborator interface pkg/fsck is built against —
// §6's "Metadata collaborator" contract, one method per named primitive.
type Metadata interface {
	Superblock() *f2fs.Superblock
	Checkpoint() *f2fs.Checkpoint
	Layout() *f2fs.Layout

	GetNodeInfo(nid uint32) (*f2fs.NatEntry, error)
	GetSumBlock(segno int64) (*SumEntry, error)
	GetSegEntry(segno int64) (*SegEntry, error)

	BuildNatAreaBitmap() ([]byte, uint32, error)
	BuildSitAreaBitmap() ([]byte, error)

	MoveCursegInfo() error
	WriteCursegInfo() error
	RewriteSitAreaBitmap(mainBitmap []byte) error
	WriteCheckpoint(cp *f2fs.Checkpoint) error
	NullifyNatEntry(nid uint32) error
	ClearExtraFlag(nid uint32) error
}

// Loader is the concrete Metadata implementation reading from a device.Device.
type Loader struct {
	dev device.Device
	sb  *f2fs.Superblock
	cp  *f2fs.Checkpoint
	lo  *f2fs.Layout

	natCache map[int64]*f2fs.NatBlock
	sitCache map[int64][]f2fs.SitEntry
}

// compile-time assertion that Loader implements Metadata.
var _ Metadata = (*Loader)(nil)

// Load reads the superblock and the more-recent of the two checkpoints off
// dev, and prepares a Loader ready to serve the rest of Metadata.
func Load(dev device.Device) (*Loader, error) {

	buf := make([]byte, f2fs.BlockSize)
	if err := dev.ReadBlock(buf, 0); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}

	sb := &f2fs.Superblock{}
	if err := binary.Read(bytes.NewReader(buf[0x400:]), binary.LittleEndian, sb); err != nil {
		return nil, fmt.Errorf("decoding superblock: %w", err)
	}
	if sb.Magic != f2fs.SuperblockMagic {
		return nil, fmt.Errorf("superblock magic mismatch: got %#x", sb.Magic)
	}

	lo := sb.ToLayout()

	cp1 := &f2fs.Checkpoint{}
	cbuf := make([]byte, f2fs.BlockSize)
	if err := dev.ReadBlock(cbuf, lo.CpBlkaddr); err != nil {
		return nil, fmt.Errorf("reading checkpoint pack 1: %w", err)
	}
	if err := binary.Read(bytes.NewReader(cbuf), binary.LittleEndian, cp1); err != nil {
		return nil, fmt.Errorf("decoding checkpoint pack 1: %w", err)
	}

	cp2 := &f2fs.Checkpoint{}
	cbuf2 := make([]byte, f2fs.BlockSize)
	cp2Blkaddr := lo.CpBlkaddr + lo.BlocksPerSeg
	if err := dev.ReadBlock(cbuf2, cp2Blkaddr); err == nil {
		_ = binary.Read(bytes.NewReader(cbuf2), binary.LittleEndian, cp2)
	}

	cp := cp1
	if cp2.CheckpointVer > cp1.CheckpointVer {
		cp = cp2
	}

	return &Loader{
		dev:      dev,
		sb:       sb,
		cp:       cp,
		lo:       lo,
		natCache: make(map[int64]*f2fs.NatBlock),
		sitCache: make(map[int64][]f2fs.SitEntry),
	}, nil
}

// Superblock returns the parsed superblock.
func (l *Loader) Superblock() *f2fs.Superblock { return l.sb }

// Checkpoint returns the selected (most recent) checkpoint.
func (l *Loader) Checkpoint() *f2fs.Checkpoint { return l.cp }

// Layout returns the derived geometry constants.
func (l *Loader) Layout() *f2fs.Layout { return l.lo }

func (l *Loader) natBlock(nid uint32) (*f2fs.NatBlock, error) {
	blockOfs := int64(nid) / int64(f2fs.NatEntryPerBlock)
	if b, ok := l.natCache[blockOfs]; ok {
		return b, nil
	}
	buf := make([]byte, f2fs.BlockSize)
	if err := l.dev.ReadBlock(buf, l.lo.NatBlkaddr+blockOfs); err != nil {
		return nil, fmt.Errorf("reading nat block %d: %w", blockOfs, err)
	}
	nb := &f2fs.NatBlock{}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, nb); err != nil {
		return nil, fmt.Errorf("decoding nat block %d: %w", blockOfs, err)
	}
	l.natCache[blockOfs] = nb
	return nb, nil
}

// GetNodeInfo implements get_node_info(nid) -> (ino, blk_addr, version).
func (l *Loader) GetNodeInfo(nid uint32) (*f2fs.NatEntry, error) {
	nb, err := l.natBlock(nid)
	if err != nil {
		return nil, err
	}
	idx := int64(nid) % int64(f2fs.NatEntryPerBlock)
	e := nb.Entries[idx]
	return &e, nil
}

func (l *Loader) sitEntries(segno int64) ([]f2fs.SitEntry, error) {
	blockOfs := segno / int64(f2fs.SitEntryPerBlock)
	if e, ok := l.sitCache[blockOfs]; ok {
		return e, nil
	}
	buf := make([]byte, f2fs.BlockSize)
	if err := l.dev.ReadBlock(buf, l.lo.SitBlkaddr+blockOfs); err != nil {
		return nil, fmt.Errorf("reading sit block %d: %w", blockOfs, err)
	}
	entries := make([]f2fs.SitEntry, f2fs.SitEntryPerBlock)
	r := bytes.NewReader(buf)
	for i := range entries {
		if err := binary.Read(r, binary.LittleEndian, &entries[i]); err != nil {
			return nil, fmt.Errorf("decoding sit block %d entry %d: %w", blockOfs, i, err)
		}
	}
	l.sitCache[blockOfs] = entries
	return entries, nil
}

// GetSegEntry implements get_seg_entry(segno) -> (type, orig_type,
// valid_blocks, cur_valid_map).
func (l *Loader) GetSegEntry(segno int64) (*SegEntry, error) {
	entries, err := l.sitEntries(segno)
	if err != nil {
		return nil, err
	}
	idx := segno % int64(f2fs.SitEntryPerBlock)
	e := entries[idx]
	se := &SegEntry{
		Type:        e.Type(),
		OrigType:    e.Type(),
		ValidBlocks: e.ValidBlocks(),
	}
	copy(se.ValidMap[:], e.ValidMap[:])
	return se, nil
}

// GetSumBlock implements get_sum_block(segno) -> (sum_block, ownership,
// type). Every segment, the currently-open ones included, is read straight
// from the SSA area, one block per segment; curseg summaries kept in the
// checkpoint pack are not consulted.
func (l *Loader) GetSumBlock(segno int64) (*SumEntry, error) {
	se, err := l.GetSegEntry(segno)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, f2fs.BlockSize)
	if err := l.dev.ReadBlock(buf, l.lo.SumBlkaddr(segno)); err != nil {
		return nil, fmt.Errorf("reading ssa block for segment %d: %w", segno, err)
	}
	sum := &f2fs.SummaryBlock{}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, sum); err != nil {
		return nil, fmt.Errorf("decoding ssa block for segment %d: %w", segno, err)
	}

	return &SumEntry{Block: sum, Fresh: true, Type: se.Type}, nil
}

// BuildNatAreaBitmap implements build_nat_area_bitmap: one bit per valid
// nid found while scanning the NAT area, plus the valid_nat_entry_cnt the
// reconciler later checks against SIT's node-block count.
func (l *Loader) BuildNatAreaBitmap() ([]byte, uint32, error) {
	maxNid := l.cp.NextFreeNid
	bitmap := f2fs.NewBitmap(int64(maxNid))
	var count uint32

	nblocks := (int64(maxNid) + int64(f2fs.NatEntryPerBlock) - 1) / int64(f2fs.NatEntryPerBlock)
	for blk := int64(0); blk < nblocks; blk++ {
		buf := make([]byte, f2fs.BlockSize)
		if err := l.dev.ReadBlock(buf, l.lo.NatBlkaddr+blk); err != nil {
			return nil, 0, fmt.Errorf("building nat bitmap, block %d: %w", blk, err)
		}
		nb := &f2fs.NatBlock{}
		if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, nb); err != nil {
			return nil, 0, fmt.Errorf("decoding nat block %d: %w", blk, err)
		}
		for i, e := range nb.Entries {
			nid := blk*int64(f2fs.NatEntryPerBlock) + int64(i)
			if nid >= int64(maxNid) {
				break
			}
			if e.IsValid() {
				f2fs.BitmapSet(bitmap, nid)
				count++
			}
		}
	}

	return bitmap, count, nil
}

// BuildSitAreaBitmap implements build_sit_area_bitmap: one bit per block
// in the main area that SIT believes is in use, the read-only reference
// the reconciler compares the walk's main_bitmap against.
func (l *Loader) BuildSitAreaBitmap() ([]byte, error) {
	totalBlocks := l.lo.TotalSegs * l.lo.BlocksPerSeg
	bitmap := f2fs.NewBitmap(totalBlocks)

	for segno := int64(0); segno < l.lo.TotalSegs; segno++ {
		se, err := l.GetSegEntry(segno)
		if err != nil {
			return nil, fmt.Errorf("building sit bitmap, segment %d: %w", segno, err)
		}
		for ofs := int64(0); ofs < l.lo.BlocksPerSeg; ofs++ {
			if f2fs.BitmapTest(se.ValidMap[:], ofs) {
				f2fs.BitmapSet(bitmap, segno*l.lo.BlocksPerSeg+ofs)
			}
		}
	}

	return bitmap, nil
}

// MoveCursegInfo is the move_curseg_info step of C10's fixed repair
// sequence. In this loader it is a no-op: no current segment's cursor is
// moved.
func (l *Loader) MoveCursegInfo() error {
	return nil
}

// WriteCursegInfo is the write_curseg_info step of C10's fixed repair
// sequence. In this loader it is a no-op: no current segment's summary
// block is written.
func (l *Loader) WriteCursegInfo() error {
	return nil
}

// RewriteSitAreaBitmap implements rewrite_sit_area_bitmap: folds the
// walk's final main_bitmap back into the on-disk SIT validity maps.
func (l *Loader) RewriteSitAreaBitmap(mainBitmap []byte) error {
	if l.dev.ReadOnly() {
		return nil
	}
	for segno := int64(0); segno < l.lo.TotalSegs; segno++ {
		entries, err := l.sitEntries(segno)
		if err != nil {
			return err
		}
		idx := segno % int64(f2fs.SitEntryPerBlock)
		e := &entries[idx]
		valid := 0
		for ofs := int64(0); ofs < l.lo.BlocksPerSeg; ofs++ {
			bit := f2fs.BitmapTest(mainBitmap, segno*l.lo.BlocksPerSeg+ofs)
			if bit {
				f2fs.BitmapSet(e.ValidMap[:], ofs)
				valid++
			} else {
				f2fs.BitmapClear(e.ValidMap[:], ofs)
			}
		}
		e.VBlocks = (e.VBlocks &^ 0x3FF) | uint16(valid&0x3FF)
	}
	for blockOfs, entries := range l.sitCache {
		buf := &bytes.Buffer{}
		for _, e := range entries {
			_ = binary.Write(buf, binary.LittleEndian, e)
		}
		block := make([]byte, f2fs.BlockSize)
		copy(block, buf.Bytes())
		if err := l.dev.WriteBlock(block, l.lo.SitBlkaddr+blockOfs); err != nil {
			return fmt.Errorf("writing sit block %d: %w", blockOfs, err)
		}
	}
	return nil
}

// WriteCheckpoint implements write_checkpoint: recomputes the CRC at
// CHECKSUM_OFFSET and writes the primary (or secondary) checkpoint block.
func (l *Loader) WriteCheckpoint(cp *f2fs.Checkpoint) error {
	if l.dev.ReadOnly() {
		return nil
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, cp); err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	block := make([]byte, f2fs.BlockSize)
	copy(block, buf.Bytes())

	crc := crc32.ChecksumIEEE(block[:f2fs.ChecksumOffset])
	binary.LittleEndian.PutUint32(block[f2fs.ChecksumOffset:], crc)

	blkaddr := l.lo.CpBlkaddr
	if cp.IsSlot2() {
		blkaddr = l.lo.CpBlkaddr + l.lo.BlocksPerSeg
	}

	if err := l.dev.WriteBlock(block, blkaddr); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}

// NullifyNatEntry implements nullify_nat_entry: zeroes a NAT entry's ino,
// the step fix_nat_entries takes for every nid still set in the walk's
// nat_bitmap at the end of the run.
func (l *Loader) NullifyNatEntry(nid uint32) error {
	if l.dev.ReadOnly() {
		return nil
	}
	blockOfs := int64(nid) / int64(f2fs.NatEntryPerBlock)
	nb, err := l.natBlock(nid)
	if err != nil {
		return err
	}
	idx := int64(nid) % int64(f2fs.NatEntryPerBlock)
	nb.Entries[idx] = f2fs.NatEntry{}

	buf := &bytes.Buffer{}
	for _, e := range nb.Entries {
		_ = binary.Write(buf, binary.LittleEndian, e)
	}
	block := make([]byte, f2fs.BlockSize)
	copy(block, buf.Bytes())

	return l.dev.WriteBlock(block, l.lo.NatBlkaddr+blockOfs)
}

// ClearExtraFlag implements clear_extra_flag: clears the inode's
// "need_fix"-adjacent advisory bits once a final writeback has committed,
// a no-op at this layer beyond invalidating the NAT cache entry so a
// subsequent GetNodeInfo call re-reads it.
func (l *Loader) ClearExtraFlag(nid uint32) error {
	blockOfs := int64(nid) / int64(f2fs.NatEntryPerBlock)
	delete(l.natCache, blockOfs)
	return nil
}

package fsck

import (
	"encoding/binary"

	"github.com/vorteil/f2fsck/pkg/f2fs"
)

// orphanBlockCount is the number of orphan nid slots packed into one
// orphan block, after the leading entry_count word (matching
// F2FS_ORPHANS_PER_BLOCK: one block minus the count field, divided by 4).
const orphanBlockCount = (f2fs.BlockSize / 4) - 1

// orphanBlock is one raw orphan-list block: a count followed by up to
// orphanBlockCount inode numbers.
type orphanBlock struct {
	Count uint32
	Inos  [orphanBlockCount]uint32
}

func decodeOrphanBlock(buf []byte) *orphanBlock {
	ob := &orphanBlock{}
	ob.Count = binary.LittleEndian.Uint32(buf[0:4])
	for i := 0; i < orphanBlockCount; i++ {
		ob.Inos[i] = binary.LittleEndian.Uint32(buf[4+i*4 : 8+i*4])
	}
	return ob
}

func encodeOrphanBlock(ob *orphanBlock) []byte {
	buf := make([]byte, f2fs.BlockSize)
	binary.LittleEndian.PutUint32(buf[0:4], ob.Count)
	for i := 0; i < orphanBlockCount; i++ {
		binary.LittleEndian.PutUint32(buf[4+i*4:8+i*4], ob.Inos[i])
	}
	return buf
}

// How many orphan blocks the checkpoint reserves is not computed here:
// run.go's orphanGeometry derives it from cp_payload and
// cp_pack_start_sum and hands it to SweepOrphans.

// SweepOrphans implements C8: replays C7 against every orphan nid recorded
// in the orphan-list blocks immediately preceding the summary area, when
// the checkpoint's orphan-present flag is set.
//
// blkaddr is the first orphan block's address and count is how many
// orphan blocks follow it — both derived from checkpoint geometry by the
// caller, since computing them needs cp_payload and the orphan block
// count the Checkpoint type doesn't carry as a first-class field.
func (c *Context) SweepOrphans(cp *f2fs.Checkpoint, blkaddr int64, count int64) error {

	if !cp.HasOrphans() {
		return nil
	}

	for i := int64(0); i < count; i++ {
		buf := make([]byte, f2fs.BlockSize)
		if err := c.Device.ReadBlock(buf, blkaddr+i); err != nil {
			return err
		}
		ob := decodeOrphanBlock(buf)

		n := ob.Count
		if n > uint32(orphanBlockCount) {
			n = uint32(orphanBlockCount)
		}

		compacted := &orphanBlock{}
		dirty := false

		for j := uint32(0); j < n; j++ {
			ino := ob.Inos[j]
			if ino == 0 {
				continue
			}

			var blkCnt int64
			err := c.CheckNode(ino, FileOrphan, NodeInode, &blkCnt, nil)
			if err != nil {
				if c.Config.PreenMode == Preen1 {
					return NewFaultNid(PrOrphanInodeError, ino, "orphan validation failed in preen mode")
				}
				c.AddFault(NewFaultNid(PrOrphanInodeError, ino, "orphan validation failed"))
				if c.Config.FixOn {
					dirty = true
					continue
				}
			}

			if c.Config.FixOn {
				compacted.Inos[compacted.Count] = ino
				compacted.Count++
			}
		}

		if dirty && c.Config.FixOn && !c.Config.RO {
			if writeErr := c.Device.WriteBlock(encodeOrphanBlock(compacted), blkaddr+i); writeErr != nil {
				return writeErr
			}
		}
	}

	return nil
}

package fsck

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/vorteil/f2fsck/pkg/f2fs"
)

// DentryCheckResult aggregates what C6 reports back to C7 after walking a
// directory payload: the child-file count and the subdirectory count the
// caller folds into i_links bookkeeping (§4.6, §4.7).
type DentryCheckResult struct {
	ChildFiles int
	SubDirs    int
	DotCount   int
	Fixed      bool
}

// dentrySlot is a decoded (entry, name) pair with its starting slot index,
// used uniformly for both inline and block dentries.
type dentrySlot struct {
	Slot  int
	Entry *f2fs.DirEntry
	Name  string
}

func decodeSlots(bitmap []byte, entries []f2fs.DirEntry, names [][f2fs.SlotLen]byte) []dentrySlot {

	var out []dentrySlot
	n := len(entries)
	seen := make([]bool, n)

	for i := 0; i < n; i++ {
		if seen[i] || !f2fs.BitmapTest(bitmap, int64(i)) {
			continue
		}
		e := entries[i]
		nameLen := int(e.NameLen)
		slots := f2fs.SlotsForName(nameLen)

		var nameBytes []byte
		for s := 0; s < slots && i+s < n; s++ {
			nameBytes = append(nameBytes, names[i+s][:]...)
			seen[i+s] = true
		}
		if nameLen > len(nameBytes) {
			nameLen = len(nameBytes)
		}

		out = append(out, dentrySlot{Slot: i, Entry: &entries[i], Name: string(nameBytes[:nameLen])})
	}

	return out
}

// CheckDentries implements C6 uniformly over inline and block dentries.
// parentIno/grandparentIno/rootIno ground the "." / ".." enforcement;
// recurse checks each remaining child, and a child it rejects has its
// slot dropped from the bitmap under fix-on.
func (c *Context) CheckDentries(
	bitmap []byte, entries []f2fs.DirEntry, names [][f2fs.SlotLen]byte,
	parentIno, grandparentIno, rootIno uint32,
	recurse func(ino uint32, isDir bool) (ok bool),
) (*DentryCheckResult, bool) {

	result := &DentryCheckResult{}
	fixed := false
	slots := decodeSlots(bitmap, entries, names)

	for _, s := range slots {
		e := s.Entry

		if e.Ino == 0 || e.Ino == f2fs.NewAddr {
			if c.Config.FixOn {
				clearDentrySlot(bitmap, entries, s.Slot)
				fixed = true
			} else {
				c.AddFault(NewFault(PrInvalidNid, fmt.Sprintf("dentry %q has invalid ino", s.Name)))
			}
			continue
		}

		if !f2fs.FtypeValid(e.FileType) {
			if c.Config.FixOn {
				clearDentrySlot(bitmap, entries, s.Slot)
				fixed = true
			} else {
				c.AddFault(NewFault(PrInvalidFtype, fmt.Sprintf("dentry %q has invalid file_type", s.Name)))
			}
			continue
		}

		if e.NameLen == 0 || e.NameLen > f2fs.MaxNameLen {
			if c.Config.FixOn {
				clearDentrySlot(bitmap, entries, s.Slot)
				fixed = true
			} else {
				c.AddFault(NewFault(PrNameLenIsZero, "dentry has zero or oversized name_len"))
			}
			continue
		}

		if (s.Name == "." || s.Name == "..") && result.DotCount >= 2 && c.Config.FixOn {
			result.DotCount++
			clearDentrySlot(bitmap, entries, s.Slot)
			fixed = true
			continue
		}

		if s.Name == "." {
			result.DotCount++
			if e.Ino != parentIno {
				if c.Config.FixOn {
					e.Ino = parentIno
					fixed = true
				} else {
					c.AddFault(NewFault(PrLostDotOrDotdot, "\".\" does not resolve to own inode"))
				}
			}
			continue
		}
		if s.Name == ".." {
			result.DotCount++
			want := grandparentIno
			if parentIno == rootIno {
				want = rootIno
			}
			if e.Ino != want {
				if c.Config.FixOn {
					e.Ino = want
					fixed = true
				} else {
					c.AddFault(NewFault(PrLostDotOrDotdot, "\"..\" does not resolve to parent inode"))
				}
			}
			continue
		}

		wantHash := f2fs.DentryHash(s.Name)
		if e.Hash != wantHash {
			if c.Config.FixOn {
				e.Hash = wantHash
				fixed = true
			} else {
				c.AddFault(NewFault(PrInvalidHashCode, fmt.Sprintf("dentry %q hash mismatch", s.Name)))
			}
		}

		isDir := e.FileType == 2
		c.PrintDentryTree(0, s.Name, e)
		ok := recurse(e.Ino, isDir)
		if !ok {
			if c.Config.FixOn {
				clearDentrySlot(bitmap, entries, s.Slot)
				fixed = true
			}
			continue
		}

		result.ChildFiles++
		if isDir {
			result.SubDirs++
		}
	}

	if result.DotCount > 2 {
		// Every dot entry past the first two has already had its slot
		// cleared above under fix-on; with or without fix-on the extra
		// entry is recorded as a fault.
		c.AddFault(NewFault(PrLostDotOrDotdot, "more than two dot entries present"))
	}

	result.Fixed = fixed
	return result, fixed
}

func clearDentrySlot(bitmap []byte, entries []f2fs.DirEntry, slot int) {
	f2fs.BitmapClear(bitmap, int64(slot))
	entries[slot] = f2fs.DirEntry{}
}

// PrintDentryTree implements the `-1` debug tree-print (original
// digest_encode/print_dentry, supplemented per SPEC_FULL.md §5):
// indentation by depth, then name, inode number, file type, plus a full
// structure dump of the slot this entry came from when the logger has
// debug output enabled. CheckDentries always passes depth 0, so entries
// print unindented.
func (c *Context) PrintDentryTree(depth int, name string, entry *f2fs.DirEntry) {
	if !c.Config.TreePrintEnabled() {
		return
	}
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	c.Log.Debugf("%s%s [ino=%d ftype=%d]", indent, name, entry.Ino, entry.FileType)
	if c.Log.IsDebugEnabled() {
		c.Log.Debugf("%s", spew.Sdump(entry))
	}
}

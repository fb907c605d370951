package f2fs

// SummaryEntriesPerBlock is the number of per-block summary entries packed
// into a single SSA block (one per block in the segment it summarizes).
const SummaryEntriesPerBlock = 512

// Summary mirrors struct f2fs_summary: a data block's back-pointer is
// (nid, version, ofs_in_node); a node block's back-pointer is only nid
// (Version/Ofs are unused and left zero).
type Summary struct {
	Nid      uint32
	Version  uint8
	OfsInNode uint16
}

// SummaryFooter carries the entry_type bit (node vs. data) of struct
// summary_footer; no other footer field is decoded.
type SummaryFooter struct {
	EntryType uint8
}

const (
	SumTypeNode uint8 = 1
	SumTypeData uint8 = 0
)

// IsNodeSeg reports whether the footer marks this SSA block's owning
// segment as a node segment.
func (f *SummaryFooter) IsNodeSeg() bool {
	return f.EntryType == SumTypeNode
}

// SummaryBlock is one SSA block: a footer plus one entry per block-offset
// in the segment it describes.
type SummaryBlock struct {
	Footer  SummaryFooter
	Entries [SummaryEntriesPerBlock]Summary
}

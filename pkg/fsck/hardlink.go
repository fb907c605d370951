package fsck

// hardLinkRecord is one entry in the ledger: (nid, expected_links,
// actual_links), kept in a list sorted by decreasing nid per §3's data
// model. The design notes call for a single owner holding these in an
// arena rather than a manually-threaded linked list; a slice on the
// ledger plays that role, with O(#multilinked) lookups which §9 accepts
// as fine.
type hardLinkRecord struct {
	Nid           uint32
	ExpectedLinks uint32
	ActualLinks   uint32
}

// HardLinkLedger is C4: the sorted set of inodes with i_links > 1 still
// waiting for every referring dentry to be seen.
type HardLinkLedger struct {
	records []*hardLinkRecord
}

// NewHardLinkLedger returns an empty ledger.
func NewHardLinkLedger() *HardLinkLedger {
	return &HardLinkLedger{}
}

func (l *HardLinkLedger) indexOf(nid uint32) int {
	for i, r := range l.records {
		if r.Nid == nid {
			return i
		}
	}
	return -1
}

func (l *HardLinkLedger) insertSorted(r *hardLinkRecord) {
	i := 0
	for i < len(l.records) && l.records[i].Nid > r.Nid {
		i++
	}
	l.records = append(l.records, nil)
	copy(l.records[i+1:], l.records[i:])
	l.records[i] = r
}

// Open implements C4's "first encounter" case: an inode with i_links > 1
// is seen for the first time (by C7's own visit, not yet by a referring
// dentry), so a record is inserted with actual_links = 1.
func (l *HardLinkLedger) Open(nid uint32, iLinks uint32) {
	if l.indexOf(nid) >= 0 {
		return
	}
	l.insertSorted(&hardLinkRecord{Nid: nid, ExpectedLinks: iLinks, ActualLinks: 1})
}

// Refer implements C4's "subsequent reference": a dentry refers to an
// already-open record, decrementing expected_links and incrementing
// actual_links. When expected_links reaches 1 every link has been seen
// and the record is dropped. A referral against a nid with no open
// record is the corrupt-i_links case §4.7(2) calls out, reported via ok=false.
func (l *HardLinkLedger) Refer(nid uint32) (ok bool) {
	idx := l.indexOf(nid)
	if idx < 0 {
		return false
	}
	r := l.records[idx]
	r.ActualLinks++
	if r.ExpectedLinks > 1 {
		r.ExpectedLinks--
	}
	if r.ExpectedLinks <= 1 {
		l.records = append(l.records[:idx], l.records[idx+1:]...)
	}
	return true
}

// Pending returns every record still outstanding at verify time — a
// non-empty result means dangling or missing links (§4.4).
func (l *HardLinkLedger) Pending() []struct {
	Nid         uint32
	ActualLinks uint32
} {
	out := make([]struct {
		Nid         uint32
		ActualLinks uint32
	}, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, struct {
			Nid         uint32
			ActualLinks uint32
		}{Nid: r.Nid, ActualLinks: r.ActualLinks})
	}
	return out
}

// Empty reports whether the ledger has no pending records.
func (l *HardLinkLedger) Empty() bool {
	return len(l.records) == 0
}

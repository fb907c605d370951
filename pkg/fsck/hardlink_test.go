package fsck

import "testing"

// TestHardLinkLedgerMissingDentryLink reproduces spec.md's scenario 2: a
// file with i_links=2 referenced by only one dentry. The ledger should
// still hold one pending record with actual_links=1 once the walk is
// done, the case fix_hard_links repairs by rewriting i_links=1.
func TestHardLinkLedgerMissingDentryLink(t *testing.T) {
	l := NewHardLinkLedger()

	l.Open(10, 2)

	if l.Empty() {
		t.Fatalf("opening a record with i_links > 1 should leave the ledger non-empty")
	}

	pending := l.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected exactly one pending record, got %d", len(pending))
	}
	if pending[0].Nid != 10 || pending[0].ActualLinks != 1 {
		t.Errorf("unexpected pending record: %+v", pending[0])
	}
}

// TestHardLinkLedgerFullyReferenced reproduces the case where every dentry
// referral is eventually seen: the record should drain to empty once
// expected_links reaches 1.
func TestHardLinkLedgerFullyReferenced(t *testing.T) {
	l := NewHardLinkLedger()

	l.Open(10, 2)
	if ok := l.Refer(10); !ok {
		t.Fatalf("Refer against an open record should succeed")
	}

	if !l.Empty() {
		t.Fatalf("ledger should be empty once every link has been seen")
	}
}

// TestHardLinkLedgerReferWithNoOpenRecord reproduces §4.7(2): a dentry
// referral against a nid that was never opened (because i_links <= 1 at
// the inode's own visit) corresponds to a corrupt i_links value.
func TestHardLinkLedgerReferWithNoOpenRecord(t *testing.T) {
	l := NewHardLinkLedger()
	if ok := l.Refer(99); ok {
		t.Fatalf("Refer against an unopened nid should report failure")
	}
}

// TestHardLinkLedgerSortedByDecreasingNid checks the §3 ordering
// invariant survives multiple opens in arbitrary insertion order.
func TestHardLinkLedgerSortedByDecreasingNid(t *testing.T) {
	l := NewHardLinkLedger()
	l.Open(5, 3)
	l.Open(50, 3)
	l.Open(20, 3)

	var last uint32 = 1 << 31
	for _, p := range l.Pending() {
		if p.Nid > last {
			t.Fatalf("ledger should stay sorted by decreasing nid, saw %d after %d", p.Nid, last)
		}
		last = p.Nid
	}
}

// TestHardLinkLedgerOpenIsIdempotent mirrors the walker calling Open only
// on an inode's first visit; a second Open for the same nid must not
// clobber the record's accumulated state.
func TestHardLinkLedgerOpenIsIdempotent(t *testing.T) {
	l := NewHardLinkLedger()
	l.Open(10, 4)
	l.Refer(10)
	l.Open(10, 4)

	pending := l.Pending()
	if len(pending) != 1 || pending[0].ActualLinks != 2 {
		t.Fatalf("re-opening an existing record should not reset its actual_links, got %+v", pending)
	}
}

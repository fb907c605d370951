package f2fs

import "testing"

func TestXattrValueCeilingWithoutExternalBlock(t *testing.T) {
	got := XattrValueCeiling(false)
	if got != int64(InlineXattrSize) {
		t.Errorf("ceiling without an external xattr block should equal InlineXattrSize, got %d", got)
	}
}

func TestXattrValueCeilingWithExternalBlock(t *testing.T) {
	got := XattrValueCeiling(true)
	want := int64(InlineXattrSize) + BlockSize - 32
	if got != want {
		t.Errorf("ceiling with an external xattr block should add a block's worth minus the footer, got %d want %d", got, want)
	}
	if got <= XattrValueCeiling(false) {
		t.Errorf("ceiling with an external block should always exceed the inline-only ceiling")
	}
}

func TestXattrEntrySize(t *testing.T) {
	e := &XattrEntry{Name: []byte("c"), ValueSize: 28}
	// 4 header bytes + 1 name byte + 28 value bytes = 33, rounded up to 36.
	if got := e.Size(); got != 36 {
		t.Errorf("XattrEntry.Size() = %d, want 36", got)
	}
}

func TestXattrEntryIsEncryptionContext(t *testing.T) {
	e := &XattrEntry{NameIndex: EncryptionXattrNameIndex, Name: []byte(EncryptionXattrName)}
	if !e.IsEncryptionContext() {
		t.Errorf("entry with the encryption name index and name should be recognized as the fscrypt context")
	}

	other := &XattrEntry{NameIndex: EncryptionXattrNameIndex, Name: []byte("not-c")}
	if other.IsEncryptionContext() {
		t.Errorf("entry with a different name should not be recognized as the fscrypt context")
	}
}

package chat

import (
	"os"
	"path/filepath"
	"testing"
)

// TestFileIdentityStore_StableAcrossReads creates the token once and
// never regenerates it
func TestFileIdentityStore_StableAcrossReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visitor_id")
	store := &FileIdentityStore{Path: path}

	first, err := store.VisitorID()
	if err != nil {
		t.Fatalf("first VisitorID: %v", err)
	}
	if first == "" {
		t.Fatal("Expected a non-empty visitor id")
	}

	second, err := store.VisitorID()
	if err != nil {
		t.Fatalf("second VisitorID: %v", err)
	}
	if first != second {
		t.Errorf("Visitor id changed between reads: %s vs %s", first, second)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading token file: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected the token to be persisted")
	}
}

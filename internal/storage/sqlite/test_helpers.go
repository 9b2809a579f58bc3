package sqlite

import (
	"context"
	"testing"
)

// newTestStore creates a Store backed by a file in t.TempDir().
// File-based databases behave like production (WAL, pooled connections),
// which in-memory databases do not.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})
	return store
}

package factory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_SQLiteBackend(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := New(ctx, BackendSQLite, Options{Path: dbPath})
	if err != nil {
		t.Fatalf("New(sqlite) failed: %v", err)
	}
	defer store.Close()

	if store.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", store.Path(), dbPath)
	}
}

func TestNew_EmptyBackendDefaultsToSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, "", Options{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("New('') failed: %v", err)
	}
	defer store.Close()
}

func TestNew_SQLiteRequiresPath(t *testing.T) {
	if _, err := New(context.Background(), BackendSQLite, Options{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), "postgres", Options{})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "dolt, sqlite") {
		t.Errorf("error should list supported backends: %v", err)
	}
}

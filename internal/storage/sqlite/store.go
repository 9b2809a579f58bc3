// Package sqlite implements the storage interface using embedded SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	// Import SQLite driver
	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/storage/sqlstore"
)

// Store implements storage.Store on a local SQLite file.
type Store struct {
	*sqlstore.Queries

	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

var _ storage.Store = (*Store)(nil)

// setupWASMCache configures WASM compilation caching to reduce SQLite startup time.
// Falls back to an in-memory cache when the user cache dir is unavailable.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		if c, err := wazero.NewCompilationCacheWithDir(filepath.Join(userCache, "prio", "wasm")); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// New opens (creating if needed) the database at path and applies the schema.
// ":memory:" opens a private in-memory database on a single connection.
func New(ctx context.Context, path string) (*Store, error) {
	isInMemory := path == ":memory:" || (strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	if !isInMemory && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", ConnString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isInMemory {
		// In-memory databases are per connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// 1 writer + N readers under WAL.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := sqlstore.ExecSchema(ctx, db, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	absPath := path
	if !isInMemory && !strings.HasPrefix(path, "file:") {
		if absPath, err = filepath.Abs(path); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
	}

	return &Store{
		Queries: sqlstore.New(db),
		db:      db,
		dbPath:  absPath,
	}, nil
}

// Close closes the database connection.
// It checkpoints the WAL so writes are in the main file between CLI invocations.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Path returns the absolute path to the database file
func (s *Store) Path() string {
	return s.dbPath
}

// IsClosed returns true if Close() has been called on this store
func (s *Store) IsClosed() bool {
	return s.closed.Load()
}

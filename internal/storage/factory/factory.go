// Package factory provides functions for creating storage backends based on configuration.
package factory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/storage/dolt"
	"github.com/prioritylab/prio/internal/storage/sqlite"
)

// Backend names accepted in the `backend` config key.
const (
	BackendSQLite = "sqlite"
	BackendDolt   = "dolt"
)

// BackendFactory is a function that creates a storage backend
type BackendFactory func(ctx context.Context, opts Options) (storage.Store, error)

// backendRegistry holds registered backend factories
var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a storage backend factory
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// Options configures how the storage backend is opened
type Options struct {
	Path string // SQLite database file

	// Dolt server mode
	Dolt dolt.Config
}

func init() {
	RegisterBackend(BackendSQLite, func(ctx context.Context, opts Options) (storage.Store, error) {
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return sqlite.New(ctx, opts.Path)
	})
	RegisterBackend(BackendDolt, func(ctx context.Context, opts Options) (storage.Store, error) {
		return dolt.New(ctx, opts.Dolt)
	})
}

// New creates a storage backend by name. An empty name selects SQLite.
func New(ctx context.Context, backend string, opts Options) (storage.Store, error) {
	if backend == "" {
		backend = BackendSQLite
	}
	if factory, ok := backendRegistry[backend]; ok {
		return factory(ctx, opts)
	}
	return nil, fmt.Errorf("unknown storage backend: %s (supported: %s)", backend, strings.Join(Backends(), ", "))
}

// Backends lists registered backend names.
func Backends() []string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package storage defines the interfaces and errors shared by task storage
// backends.
//
// The concrete implementations live in the sqlite (embedded, default) and
// dolt (server mode) sub-packages; both are built on the dialect-neutral
// queries in sqlstore.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prioritylab/prio/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input is rejected before any mutation.
var ErrValidation = errors.New("validation failed")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// StorageError is a local transactional failure. The surrounding
// transaction has been rolled back when it is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Validationf wraps a formatted message with ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Reader is the read side shared by stores and transactions.
type Reader interface {
	GetTask(ctx context.Context, id string) (*types.Task, error)
	SearchTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error)
	// ActiveSiblings returns the non-completed tasks of one scope ordered by
	// rank. A nil parentID selects top-level tasks.
	ActiveSiblings(ctx context.Context, parentID *string) ([]*types.Task, error)
	// Children returns every direct child of id, completed or not.
	Children(ctx context.Context, id string) ([]*types.Task, error)

	// Entries returns the whole outbound queue in enqueue order.
	Entries(ctx context.Context) ([]*types.QueueEntry, error)
	EntriesForTask(ctx context.Context, taskID string) ([]*types.QueueEntry, error)

	GetMetadata(ctx context.Context, key string) (string, error)
}

// Writer is the mutation side shared by stores and transactions.
type Writer interface {
	InsertTask(ctx context.Context, task *types.Task) error
	// UpdateTask overwrites every column of an existing row.
	UpdateTask(ctx context.Context, task *types.Task) error
	DeleteTask(ctx context.Context, id string) error
	// ShiftRanks adds delta to the rank of every active task in the scope
	// whose rank is >= fromRank. Shifted rows become pending and their
	// updated_at is raised to at unless it is already later.
	ShiftRanks(ctx context.Context, parentID *string, fromRank, delta int, at time.Time) (int64, error)
	// SetSyncStatus changes sync bookkeeping only; updated_at is untouched.
	SetSyncStatus(ctx context.Context, id string, status types.SyncStatus) error
	MarkSynced(ctx context.Context, id string, syncedAt time.Time, serverUpdatedAt *time.Time) error

	// Enqueue appends an entry and returns its assigned queue id.
	Enqueue(ctx context.Context, entry *types.QueueEntry) (int64, error)
	RemoveEntry(ctx context.Context, queueID int64) error
	UpdateEntryRetry(ctx context.Context, queueID int64, retryCount int, lastError string, nextAttemptAt *time.Time) error

	SetMetadata(ctx context.Context, key, value string) error
}

// Transaction provides atomic multi-operation support within a single database transaction.
//
// # Transaction Semantics
//
//   - All operations within the transaction share the same database connection
//   - Changes are not visible to other connections until commit
//   - If the callback returns an error or panics, the transaction is rolled back
//   - On successful return from the callback, the transaction is committed
//
// # Example Usage
//
//	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
//	    if _, err := tx.ShiftRanks(ctx, parent, 0, +1, now); err != nil {
//	        return err // Triggers rollback
//	    }
//	    if err := tx.InsertTask(ctx, task); err != nil {
//	        return err
//	    }
//	    _, err := tx.Enqueue(ctx, entry)
//	    return err // nil triggers commit
//	})
type Transaction interface {
	Reader
	Writer
}

// Store is the interface satisfied by the sqlite and dolt backends.
// Consumers depend on this interface rather than on a concrete type so that
// decorators (telemetry) and test doubles can be substituted.
type Store interface {
	Reader
	Writer

	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Path describes where the data lives (file path or server DSN without
	// credentials).
	Path() string
	Close() error
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	sqlite3 "github.com/ncruces/go-sqlite3"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/storage/sqlstore"
)

// RunInTransaction executes fn within a database transaction.
//
// The transaction uses BEGIN IMMEDIATE to take the write lock up front, so
// two writers never deadlock upgrading from a read lock.
//
// Transaction lifecycle:
//  1. Acquire dedicated connection from pool
//  2. Begin IMMEDIATE transaction with retry on SQLITE_BUSY
//  3. Execute fn with a Transaction bound to that connection
//  4. On success: COMMIT
//  5. On error or panic: ROLLBACK
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return &storage.StorageError{Op: "acquire connection", Err: err}
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return &storage.StorageError{Op: "begin transaction", Err: err}
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback completes even if ctx is cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(sqlstore.New(conn)); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return &storage.StorageError{Op: "commit", Err: err}
	}
	committed = true
	return nil
}

// beginImmediateWithRetry starts an IMMEDIATE transaction, backing off
// exponentially while another writer holds the lock.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn, maxRetries uint64, initial time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxElapsedTime = 0

	op := func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if isBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)); err != nil {
		return fmt.Errorf("begin immediate: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	if errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

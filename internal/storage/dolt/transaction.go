package dolt

import (
	"context"
	"database/sql"

	"github.com/cenkalti/backoff/v4"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/storage/sqlstore"
)

// RunInTransaction executes fn inside a server transaction. Starting the
// transaction is retried on transient connection errors; fn itself runs once.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}

	var tx *sql.Tx
	err := backoff.Retry(func() error {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(newServerRetryBackoff(), ctx))
	if err != nil {
		return &storage.StorageError{Op: "begin transaction", Err: err}
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(sqlstore.New(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &storage.StorageError{Op: "commit", Err: err}
	}
	committed = true
	return nil
}

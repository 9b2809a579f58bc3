package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/prioritylab/prio/internal/storage"
)

// wrapDBError wraps a database error with operation context.
// It converts sql.ErrNoRows to storage.ErrNotFound and everything else to a
// *storage.StorageError.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	var se *storage.StorageError
	if errors.As(err, &se) || errors.Is(err, storage.ErrValidation) {
		return err
	}
	return &storage.StorageError{Op: op, Err: err}
}

// wrapDBErrorf wraps a database error with formatted operation context.
func wrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return wrapDBError(fmt.Sprintf(format, args...), err)
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// ExecSchema runs a multi-statement DDL script one statement at a time,
// since the MySQL protocol rejects several statements in one Exec.
func ExecSchema(ctx context.Context, db DB, schema string) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

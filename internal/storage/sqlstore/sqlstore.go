// Package sqlstore implements the storage reader and writer on top of
// database/sql. The statements stick to the subset understood by both SQLite
// and the MySQL dialect spoken by Dolt, so each backend only supplies its
// schema, its connection setup and its transaction semantics.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
)

// DB is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs task and queue statements against one DB handle.
type Queries struct {
	db DB
}

// New binds queries to a handle.
func New(db DB) *Queries {
	return &Queries{db: db}
}

var _ storage.Transaction = (*Queries)(nil)

const taskColumns = `id, title, description, deadline, task_rank, parent_id, depth,
	completed, completed_at, created_at, updated_at, collaborators,
	sync_status, last_synced_at, server_updated_at`

const entryColumns = `queue_id, task_id, operation, payload, enqueued_at,
	retry_count, last_error, next_attempt_at`

// GetTask returns a task by id or an error wrapping storage.ErrNotFound.
func (q *Queries) GetTask(ctx context.Context, id string) (*types.Task, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get task %s", id)
	}
	return task, nil
}

// SearchTasks returns tasks matching filter, active tasks first, then by rank.
func (q *Queries) SearchTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error) {
	var where []string
	var args []any

	switch {
	case filter.ParentID != nil:
		where = append(where, "parent_id = ?")
		args = append(args, *filter.ParentID)
	case filter.TopLevel:
		where = append(where, "parent_id IS NULL")
	}
	if filter.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, *filter.Completed)
	}
	if len(filter.SyncStatuses) > 0 {
		placeholders := make([]string, len(filter.SyncStatuses))
		for i, s := range filter.SyncStatuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "sync_status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.IDPrefix != "" {
		where = append(where, "id LIKE ? ESCAPE '!'")
		args = append(args, escapeLike(filter.IDPrefix)+"%")
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY completed, task_rank, created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("search tasks", err)
	}
	defer func() { _ = rows.Close() }()
	tasks, err := scanTasks(rows)
	return tasks, wrapDBError("search tasks", err)
}

// ActiveSiblings returns the active tasks of one scope ordered by rank.
func (q *Queries) ActiveSiblings(ctx context.Context, parentID *string) ([]*types.Task, error) {
	cond, args := parentCond(parentID)
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE completed = ? AND `+cond+` ORDER BY task_rank, updated_at, id`,
		append([]any{false}, args...)...)
	if err != nil {
		return nil, wrapDBError("list scope", err)
	}
	defer func() { _ = rows.Close() }()
	tasks, err := scanTasks(rows)
	return tasks, wrapDBError("list scope", err)
}

// Children returns every direct child of id.
func (q *Queries) Children(ctx context.Context, id string) ([]*types.Task, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE parent_id = ? ORDER BY completed, task_rank, id`, id)
	if err != nil {
		return nil, wrapDBErrorf(err, "children of %s", id)
	}
	defer func() { _ = rows.Close() }()
	tasks, err := scanTasks(rows)
	return tasks, wrapDBErrorf(err, "children of %s", id)
}

// InsertTask writes a new row.
func (q *Queries) InsertTask(ctx context.Context, t *types.Task) error {
	collab, err := encodeCollaborators(t.Collaborators)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, nullTime(t.Deadline), t.Rank, nullString(t.ParentID), t.Depth,
		t.Completed, nullTime(t.CompletedAt), formatTime(t.CreatedAt), formatTime(t.UpdatedAt), collab,
		string(syncStatusOrPending(t.SyncStatus)), nullTime(t.LastSyncedAt), nullTime(t.ServerUpdatedAt),
	)
	return wrapDBErrorf(err, "insert task %s", t.ID)
}

// UpdateTask overwrites an existing row.
func (q *Queries) UpdateTask(ctx context.Context, t *types.Task) error {
	collab, err := encodeCollaborators(t.Collaborators)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, deadline = ?, task_rank = ?, parent_id = ?,
			depth = ?, completed = ?, completed_at = ?, created_at = ?, updated_at = ?,
			collaborators = ?, sync_status = ?, last_synced_at = ?, server_updated_at = ?
		WHERE id = ?`,
		t.Title, t.Description, nullTime(t.Deadline), t.Rank, nullString(t.ParentID),
		t.Depth, t.Completed, nullTime(t.CompletedAt), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
		collab, string(syncStatusOrPending(t.SyncStatus)), nullTime(t.LastSyncedAt), nullTime(t.ServerUpdatedAt),
		t.ID,
	)
	if err != nil {
		return wrapDBErrorf(err, "update task %s", t.ID)
	}
	return requireRow(res, "update task "+t.ID)
}

// DeleteTask removes one row. Deleting a missing row is not an error.
func (q *Queries) DeleteTask(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return wrapDBErrorf(err, "delete task %s", id)
}

// ShiftRanks moves a block of active siblings by delta in one statement.
func (q *Queries) ShiftRanks(ctx context.Context, parentID *string, fromRank, delta int, at time.Time) (int64, error) {
	cond, pargs := parentCond(parentID)
	ts := formatTime(at)
	args := []any{delta, string(types.SyncPending), ts, ts, false, fromRank}
	res, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET task_rank = task_rank + ?, sync_status = ?,
			updated_at = CASE WHEN updated_at < ? THEN ? ELSE updated_at END
		WHERE completed = ? AND task_rank >= ? AND `+cond, append(args, pargs...)...)
	if err != nil {
		return 0, wrapDBError("shift ranks", err)
	}
	n, err := res.RowsAffected()
	return n, wrapDBError("shift ranks", err)
}

// SetSyncStatus changes only the sync_status column.
func (q *Queries) SetSyncStatus(ctx context.Context, id string, status types.SyncStatus) error {
	if !status.IsValid() {
		return storage.Validationf("invalid sync status %q", status)
	}
	_, err := q.db.ExecContext(ctx, `UPDATE tasks SET sync_status = ? WHERE id = ?`, string(status), id)
	return wrapDBErrorf(err, "set sync status of %s", id)
}

// MarkSynced records a confirmed server write. A nil serverUpdatedAt keeps
// the previous value.
func (q *Queries) MarkSynced(ctx context.Context, id string, syncedAt time.Time, serverUpdatedAt *time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET sync_status = ?, last_synced_at = ?,
			server_updated_at = COALESCE(?, server_updated_at)
		WHERE id = ?`,
		string(types.SyncSynced), formatTime(syncedAt), nullTime(serverUpdatedAt), id)
	return wrapDBErrorf(err, "mark %s synced", id)
}

// Entries returns every queue entry in enqueue order.
func (q *Queries) Entries(ctx context.Context) ([]*types.QueueEntry, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM sync_queue ORDER BY queue_id`)
	if err != nil {
		return nil, wrapDBError("read queue", err)
	}
	defer func() { _ = rows.Close() }()
	entries, err := scanEntries(rows)
	return entries, wrapDBError("read queue", err)
}

// EntriesForTask returns the queue entries of one task in enqueue order.
func (q *Queries) EntriesForTask(ctx context.Context, taskID string) ([]*types.QueueEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM sync_queue WHERE task_id = ? ORDER BY queue_id`, taskID)
	if err != nil {
		return nil, wrapDBErrorf(err, "read queue for %s", taskID)
	}
	defer func() { _ = rows.Close() }()
	entries, err := scanEntries(rows)
	return entries, wrapDBErrorf(err, "read queue for %s", taskID)
}

// Enqueue appends an entry and stores the assigned id on it.
func (q *Queries) Enqueue(ctx context.Context, e *types.QueueEntry) (int64, error) {
	if !e.Operation.IsValid() {
		return 0, storage.Validationf("invalid operation %q", e.Operation)
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	var payload sql.NullString
	if len(e.Payload) > 0 {
		payload = sql.NullString{String: string(e.Payload), Valid: true}
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO sync_queue (task_id, operation, payload, enqueued_at, retry_count, last_error, next_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TaskID, string(e.Operation), payload, formatTime(e.EnqueuedAt), e.RetryCount, e.LastError, nullTime(e.NextAttemptAt))
	if err != nil {
		return 0, wrapDBErrorf(err, "enqueue %s for %s", e.Operation, e.TaskID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapDBError("enqueue", err)
	}
	e.QueueID = id
	return id, nil
}

// RemoveEntry deletes a queue entry. Removing a missing entry is not an error.
func (q *Queries) RemoveEntry(ctx context.Context, queueID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE queue_id = ?`, queueID)
	return wrapDBErrorf(err, "remove queue entry %d", queueID)
}

// UpdateEntryRetry stores retry bookkeeping for an entry.
func (q *Queries) UpdateEntryRetry(ctx context.Context, queueID int64, retryCount int, lastError string, next *time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE sync_queue SET retry_count = ?, last_error = ?, next_attempt_at = ?
		WHERE queue_id = ?`, retryCount, lastError, nullTime(next), queueID)
	if err != nil {
		return wrapDBErrorf(err, "update queue entry %d", queueID)
	}
	return requireRow(res, "update queue entry")
}

// GetMetadata returns a metadata value, or "" when the key is unset.
func (q *Queries) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRowContext(ctx, `SELECT meta_value FROM metadata WHERE meta_key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, wrapDBErrorf(err, "get metadata %s", key)
}

// SetMetadata replaces a metadata value.
func (q *Queries) SetMetadata(ctx context.Context, key, value string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM metadata WHERE meta_key = ?`, key); err != nil {
		return wrapDBErrorf(err, "set metadata %s", key)
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO metadata (meta_key, meta_value) VALUES (?, ?)`, key, value)
	return wrapDBErrorf(err, "set metadata %s", key)
}

func parentCond(parentID *string) (string, []any) {
	if parentID == nil {
		return "parent_id IS NULL", nil
	}
	return "parent_id = ?", []any{*parentID}
}

func syncStatusOrPending(s types.SyncStatus) types.SyncStatus {
	if s == "" {
		return types.SyncPending
	}
	return s
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

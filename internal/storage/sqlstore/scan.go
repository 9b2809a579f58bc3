package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prioritylab/prio/internal/types"
)

// timeLayout is fixed width so that string comparison in SQL orders
// timestamps correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the storage layout plus the formats older rows or hand
// edits may carry.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		timeLayout,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func encodeCollaborators(c []string) (sql.NullString, error) {
	if len(c) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode collaborators: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*types.Task, error) {
	var t types.Task
	var deadline, parentID, completedAt, collab sql.NullString
	var createdAt, updatedAt, syncStatus string
	var lastSynced, serverUpdated sql.NullString

	if err := s.Scan(
		&t.ID, &t.Title, &t.Description, &deadline, &t.Rank, &parentID, &t.Depth,
		&t.Completed, &completedAt, &createdAt, &updatedAt, &collab,
		&syncStatus, &lastSynced, &serverUpdated,
	); err != nil {
		return nil, err
	}

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("task %s created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("task %s updated_at: %w", t.ID, err)
	}
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&t.Deadline, deadline},
		{&t.CompletedAt, completedAt},
		{&t.LastSyncedAt, lastSynced},
		{&t.ServerUpdatedAt, serverUpdated},
	} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
	}
	if parentID.Valid {
		p := parentID.String
		t.ParentID = &p
	}
	if collab.Valid && collab.String != "" {
		if err := json.Unmarshal([]byte(collab.String), &t.Collaborators); err != nil {
			return nil, fmt.Errorf("task %s collaborators: %w", t.ID, err)
		}
	}
	t.SyncStatus = types.SyncStatus(syncStatus)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*types.Task, error) {
	var tasks []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanEntries(rows *sql.Rows) ([]*types.QueueEntry, error) {
	var entries []*types.QueueEntry
	for rows.Next() {
		var e types.QueueEntry
		var op, enqueuedAt string
		var payload, lastError, next sql.NullString
		if err := rows.Scan(&e.QueueID, &e.TaskID, &op, &payload, &enqueuedAt,
			&e.RetryCount, &lastError, &next); err != nil {
			return nil, err
		}
		e.Operation = types.Operation(op)
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		e.LastError = lastError.String
		var err error
		if e.EnqueuedAt, err = parseTime(enqueuedAt); err != nil {
			return nil, fmt.Errorf("queue entry %d: %w", e.QueueID, err)
		}
		if e.NextAttemptAt, err = parseNullTime(next); err != nil {
			return nil, fmt.Errorf("queue entry %d: %w", e.QueueID, err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Package types defines core data structures for the prio task manager.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MaxTitleLength bounds Task.Title in characters.
const MaxTitleLength = 500

// Task is a unit of work with a position among its siblings.
//
// Rank is dense within a sibling scope: the active (non-completed) children
// of one parent always hold ranks 0..N-1. A completed task keeps the rank it
// had when it was completed, but that rank is no longer meaningful.
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	Rank          int        `json:"rank"`
	ParentID      *string    `json:"parentId,omitempty"`
	Depth         int        `json:"depth"`
	Completed     bool       `json:"completed"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Collaborators []string   `json:"collaborators,omitempty"`

	// Local sync bookkeeping. Never sent to the server.
	SyncStatus      SyncStatus `json:"syncStatus,omitempty"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	ServerUpdatedAt *time.Time `json:"serverUpdatedAt,omitempty"`
}

// Validate checks field values and the completed_at invariant.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if err := validateTitle(t.Title); err != nil {
		return err
	}
	if t.Rank < 0 {
		return fmt.Errorf("rank cannot be negative (got %d)", t.Rank)
	}
	if t.Depth < 0 {
		return fmt.Errorf("depth cannot be negative (got %d)", t.Depth)
	}
	if t.ParentID != nil && *t.ParentID == t.ID {
		return fmt.Errorf("task cannot be its own parent")
	}
	if t.Completed && t.CompletedAt == nil {
		return fmt.Errorf("completed tasks must have completedAt timestamp")
	}
	if !t.Completed && t.CompletedAt != nil {
		return fmt.Errorf("active tasks cannot have completedAt timestamp")
	}
	if t.SyncStatus != "" && !t.SyncStatus.IsValid() {
		return fmt.Errorf("invalid sync status: %s", t.SyncStatus)
	}
	return nil
}

// Parent returns the parent ID or "" for top-level tasks.
func (t *Task) Parent() string {
	if t.ParentID == nil {
		return ""
	}
	return *t.ParentID
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Deadline = cloneTime(t.Deadline)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.LastSyncedAt = cloneTime(t.LastSyncedAt)
	c.ServerUpdatedAt = cloneTime(t.ServerUpdatedAt)
	if t.ParentID != nil {
		p := *t.ParentID
		c.ParentID = &p
	}
	if t.Collaborators != nil {
		c.Collaborators = append([]string(nil), t.Collaborators...)
	}
	return &c
}

// Wire returns the copy of the task that is sent to the server, without
// local sync bookkeeping.
func (t *Task) Wire() *Task {
	c := t.Clone()
	c.SyncStatus = ""
	c.LastSyncedAt = nil
	c.ServerUpdatedAt = nil
	return c
}

// SameContent reports whether two tasks carry the same user-visible data,
// ignoring sync bookkeeping.
func (t *Task) SameContent(o *Task) bool {
	if t.ID != o.ID || t.Title != o.Title || t.Description != o.Description ||
		t.Rank != o.Rank || t.Depth != o.Depth || t.Completed != o.Completed ||
		t.Parent() != o.Parent() {
		return false
	}
	if !timePtrEqual(t.Deadline, o.Deadline) || !timePtrEqual(t.CompletedAt, o.CompletedAt) {
		return false
	}
	if len(t.Collaborators) != len(o.Collaborators) {
		return false
	}
	for i := range t.Collaborators {
		if t.Collaborators[i] != o.Collaborators[i] {
			return false
		}
	}
	return true
}

// SyncStatus tracks a task's replication state against the server.
type SyncStatus string

// Sync status constants
const (
	SyncPending  SyncStatus = "pending"
	SyncSyncing  SyncStatus = "syncing"
	SyncSynced   SyncStatus = "synced"
	SyncConflict SyncStatus = "conflict"
	SyncError    SyncStatus = "error" // retries exhausted, needs `prio retry`
)

// IsValid checks if the sync status value is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncPending, SyncSyncing, SyncSynced, SyncConflict, SyncError:
		return true
	}
	return false
}

// TaskDraft holds the user-supplied fields for a new task.
type TaskDraft struct {
	Title         string
	Description   string
	Deadline      *time.Time
	Collaborators []string
}

// Validate checks the draft before any storage mutation.
func (d *TaskDraft) Validate() error {
	return validateTitle(d.Title)
}

// TaskPatch is a partial content edit. Nil fields are left unchanged.
type TaskPatch struct {
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	ClearDeadline bool       `json:"-"`
	Collaborators *[]string  `json:"collaborators,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Deadline == nil &&
		!p.ClearDeadline && p.Collaborators == nil
}

// Validate checks the patch before any storage mutation.
func (p *TaskPatch) Validate() error {
	if p.Title != nil {
		return validateTitle(*p.Title)
	}
	return nil
}

// Apply writes the patch onto t and returns the remote payload describing
// the changed fields.
func (p *TaskPatch) Apply(t *Task) map[string]any {
	changed := map[string]any{}
	if p.Title != nil && *p.Title != t.Title {
		t.Title = *p.Title
		changed["title"] = t.Title
	}
	if p.Description != nil && *p.Description != t.Description {
		t.Description = *p.Description
		changed["description"] = t.Description
	}
	if p.ClearDeadline && t.Deadline != nil {
		t.Deadline = nil
		changed["deadline"] = nil
	} else if p.Deadline != nil && !timePtrEqual(p.Deadline, t.Deadline) {
		d := *p.Deadline
		t.Deadline = &d
		changed["deadline"] = d
	}
	if p.Collaborators != nil {
		t.Collaborators = append([]string(nil), (*p.Collaborators)...)
		changed["collaborators"] = t.Collaborators
	}
	return changed
}

// TaskFilter narrows SearchTasks results. Zero value matches everything.
type TaskFilter struct {
	ParentID     *string     // only children of this parent
	TopLevel     bool        // only tasks without a parent
	Completed    *bool       // completed or active only
	SyncStatuses []SyncStatus
	IDPrefix     string
	Limit        int
}

// QueueEntry is one durable outbound mutation awaiting delivery.
type QueueEntry struct {
	QueueID       int64           `json:"queueId"`
	TaskID        string          `json:"taskId"`
	Operation     Operation       `json:"operation"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt    time.Time       `json:"enqueuedAt"`
	RetryCount    int             `json:"retryCount"`
	LastError     string          `json:"lastError,omitempty"`
	NextAttemptAt *time.Time      `json:"nextAttemptAt,omitempty"`
}

// Operation is the kind of remote mutation a queue entry represents.
type Operation string

// Operation constants
const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// IsValid checks if the operation value is valid
func (o Operation) IsValid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// NewEntry builds a queue entry with a JSON-encoded payload.
func NewEntry(taskID string, op Operation, payload any) (*QueueEntry, error) {
	if !op.IsValid() {
		return nil, fmt.Errorf("invalid operation: %s", op)
	}
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload for %s: %w", op, taskID, err)
		}
		raw = b
	}
	return &QueueEntry{TaskID: taskID, Operation: op, Payload: raw}, nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}
	if n := len([]rune(title)); n > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, n)
	}
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

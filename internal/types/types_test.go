package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTaskValidation(t *testing.T) {
	now := time.Now()
	self := "t-1"
	tests := []struct {
		name    string
		task    Task
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid task",
			task: Task{ID: "t-1", Title: "Write report", SyncStatus: SyncPending},
		},
		{
			name:    "missing id",
			task:    Task{Title: "No id"},
			wantErr: true,
			errMsg:  "id is required",
		},
		{
			name:    "missing title",
			task:    Task{ID: "t-1", Title: "   "},
			wantErr: true,
			errMsg:  "title is required",
		},
		{
			name:    "title too long",
			task:    Task{ID: "t-1", Title: strings.Repeat("x", 501)},
			wantErr: true,
			errMsg:  "title must be 500 characters or less",
		},
		{
			name: "multibyte title at limit",
			task: Task{ID: "t-1", Title: strings.Repeat("é", 500)},
		},
		{
			name:    "negative rank",
			task:    Task{ID: "t-1", Title: "x", Rank: -1},
			wantErr: true,
			errMsg:  "rank cannot be negative",
		},
		{
			name:    "own parent",
			task:    Task{ID: "t-1", Title: "x", ParentID: &self},
			wantErr: true,
			errMsg:  "own parent",
		},
		{
			name:    "completed without timestamp",
			task:    Task{ID: "t-1", Title: "x", Completed: true},
			wantErr: true,
			errMsg:  "completed tasks must have completedAt",
		},
		{
			name:    "active with timestamp",
			task:    Task{ID: "t-1", Title: "x", CompletedAt: &now},
			wantErr: true,
			errMsg:  "active tasks cannot have completedAt",
		},
		{
			name:    "unknown sync status",
			task:    Task{ID: "t-1", Title: "x", SyncStatus: "lost"},
			wantErr: true,
			errMsg:  "invalid sync status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() expected error containing %q", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want substring %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestSyncStatusIsValid(t *testing.T) {
	for _, s := range []SyncStatus{SyncPending, SyncSyncing, SyncSynced, SyncConflict, SyncError} {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if SyncStatus("").IsValid() || SyncStatus("done").IsValid() {
		t.Error("unknown statuses must be rejected")
	}
}

func TestCloneIsDeep(t *testing.T) {
	parent := "p"
	deadline := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	orig := &Task{ID: "a", Title: "a", ParentID: &parent, Deadline: &deadline, Collaborators: []string{"kim"}}

	c := orig.Clone()
	*c.ParentID = "q"
	*c.Deadline = deadline.Add(time.Hour)
	c.Collaborators[0] = "lee"

	if orig.Parent() != "p" || !orig.Deadline.Equal(deadline) || orig.Collaborators[0] != "kim" {
		t.Fatalf("clone shares memory with original: %+v", orig)
	}
}

func TestWireDropsBookkeeping(t *testing.T) {
	now := time.Now()
	task := &Task{ID: "a", Title: "a", SyncStatus: SyncSynced, LastSyncedAt: &now, ServerUpdatedAt: &now}
	b, err := json.Marshal(task.Wire())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"syncStatus", "lastSyncedAt", "serverUpdatedAt"} {
		if strings.Contains(string(b), key) {
			t.Errorf("wire form contains %s: %s", key, b)
		}
	}
	if task.SyncStatus != SyncSynced {
		t.Error("Wire must not mutate the receiver")
	}
}

func TestPatchApply(t *testing.T) {
	deadline := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	task := &Task{ID: "a", Title: "old", Description: "same", Deadline: &deadline}

	title := "new"
	desc := "same"
	p := &TaskPatch{Title: &title, Description: &desc, ClearDeadline: true}
	changed := p.Apply(task)

	if task.Title != "new" || task.Deadline != nil {
		t.Fatalf("patch not applied: %+v", task)
	}
	if _, ok := changed["description"]; ok {
		t.Error("unchanged description should not be in payload")
	}
	if v, ok := changed["deadline"]; !ok || v != nil {
		t.Errorf("cleared deadline should be sent as null, got %v (present=%v)", v, ok)
	}
	if changed["title"] != "new" {
		t.Errorf("title payload = %v", changed["title"])
	}
}

func TestPatchIsEmpty(t *testing.T) {
	if !(&TaskPatch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
	if (&TaskPatch{ClearDeadline: true}).IsEmpty() {
		t.Error("ClearDeadline patch is not empty")
	}
}

func TestNewEntry(t *testing.T) {
	e, err := NewEntry("a", OpUpdate, map[string]any{"completed": true})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	if string(e.Payload) != `{"completed":true}` {
		t.Errorf("payload = %s", e.Payload)
	}

	e, err = NewEntry("a", OpDelete, nil)
	if err != nil || e.Payload != nil {
		t.Errorf("delete entry = %+v, %v", e, err)
	}

	if _, err := NewEntry("a", "merge", nil); err == nil {
		t.Error("expected error for unknown operation")
	}
}

// Package export writes a snapshot of the task store as JSON, YAML or TOML.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
	"github.com/prioritylab/prio/internal/utils"
)

// Format is an output encoding.
type Format string

// Supported formats
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json, yaml or toml)", s)
}

// FormatForPath picks the format from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return FormatJSON
}

// Record is one exported task.
type Record struct {
	ID            string     `json:"id" yaml:"id" toml:"id"`
	ParentID      string     `json:"parentId,omitempty" yaml:"parentId,omitempty" toml:"parentId,omitempty"`
	Title         string     `json:"title" yaml:"title" toml:"title"`
	Description   string     `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Rank          int        `json:"rank" yaml:"rank" toml:"rank"`
	Depth         int        `json:"depth" yaml:"depth" toml:"depth"`
	Completed     bool       `json:"completed" yaml:"completed" toml:"completed"`
	CompletedAt   *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty" toml:"completedAt,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty" yaml:"deadline,omitempty" toml:"deadline,omitempty"`
	Collaborators []string   `json:"collaborators,omitempty" yaml:"collaborators,omitempty" toml:"collaborators,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" yaml:"createdAt" toml:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt" yaml:"updatedAt" toml:"updatedAt"`
	SyncStatus    string     `json:"syncStatus" yaml:"syncStatus" toml:"syncStatus"`
}

// Snapshot is the exported document.
type Snapshot struct {
	ExportedAt time.Time `json:"exportedAt" yaml:"exportedAt" toml:"exportedAt"`
	Database   string    `json:"database" yaml:"database" toml:"database"`
	TaskCount  int       `json:"taskCount" yaml:"taskCount" toml:"taskCount"`
	Queued     int       `json:"queued" yaml:"queued" toml:"queued"`
	Tasks      []Record  `json:"tasks" yaml:"tasks" toml:"tasks"`
}

// Build reads every task in tree order: each scope by rank with completed
// tasks last, children right after their parent.
func Build(ctx context.Context, store storage.Reader, database string, now time.Time) (*Snapshot, error) {
	all, err := store.SearchTasks(ctx, types.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	entries, err := store.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}

	children := map[string][]*types.Task{}
	for _, t := range all {
		children[t.Parent()] = append(children[t.Parent()], t)
	}
	for _, sibs := range children {
		sort.SliceStable(sibs, func(i, j int) bool {
			if sibs[i].Completed != sibs[j].Completed {
				return !sibs[i].Completed
			}
			if sibs[i].Rank != sibs[j].Rank {
				return sibs[i].Rank < sibs[j].Rank
			}
			return sibs[i].ID < sibs[j].ID
		})
	}

	snap := &Snapshot{ExportedAt: now.UTC(), Database: database, Queued: len(entries)}
	var walk func(parent string)
	walk = func(parent string) {
		for _, t := range children[parent] {
			snap.Tasks = append(snap.Tasks, recordOf(t))
			walk(t.ID)
		}
	}
	walk("")
	snap.TaskCount = len(snap.Tasks)
	return snap, nil
}

func recordOf(t *types.Task) Record {
	return Record{
		ID:            t.ID,
		ParentID:      t.Parent(),
		Title:         t.Title,
		Description:   t.Description,
		Rank:          t.Rank,
		Depth:         t.Depth,
		Completed:     t.Completed,
		CompletedAt:   t.CompletedAt,
		Deadline:      t.Deadline,
		Collaborators: t.Collaborators,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		SyncStatus:    string(t.SyncStatus),
	}
}

// Write encodes snap to w.
func Write(w io.Writer, format Format, snap *Snapshot) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(snap)
	}
	return fmt.Errorf("unknown export format %q", format)
}

// WriteFile encodes snap into path atomically. A symlinked path is
// written through to its target.
func WriteFile(path string, format Format, snap *Snapshot) error {
	path, err := utils.ResolveForWrite(path)
	if err != nil {
		return fmt.Errorf("failed to resolve export path: %w", err)
	}
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	defer func() {
		_ = tempFile.Close()    // Best effort: may already be closed before rename
		_ = os.Remove(tempPath) // Best effort: may already be renamed
	}()

	if err := Write(tempFile, format, snap); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	// Close before rename (required on Windows)
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := utils.ReplaceFile(tempPath, path); err != nil {
		return fmt.Errorf("failed to replace export file: %w", err)
	}
	return nil
}

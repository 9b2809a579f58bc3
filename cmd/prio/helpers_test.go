package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prioritylab/prio/internal/outbox"
	"github.com/prioritylab/prio/internal/rank"
	"github.com/prioritylab/prio/internal/remote"
	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/storage/sqlite"
	"github.com/prioritylab/prio/internal/types"
)

func TestCleanCollaborators(t *testing.T) {
	assert.Equal(t, []string{"ana", "li"}, cleanCollaborators([]string{" ana", "li", "", "ana "}))
	assert.Nil(t, cleanCollaborators(nil))
}

func TestShortIDAndPlural(t *testing.T) {
	assert.Equal(t, "0123abcd", shortID("0123abcd-ef45-6789"))
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "1 task", plural(1, "task"))
	assert.Equal(t, "0 changes", plural(0, "change"))
	assert.Equal(t, "never", formatTime(nil))
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{storage.Validationf("bad"), "validation"},
		{fmt.Errorf("lookup: %w", storage.ErrNotFound), "not_found"},
		{&outbox.RetryExhaustedError{TaskID: "t", Err: errors.New("boom")}, "retry_exhausted"},
		{&remote.TransportError{Method: "GET", Path: "/tasks", StatusCode: 502}, "remote"},
		{&storage.StorageError{Op: "insert", Err: errors.New("disk full")}, "storage"},
		{errors.New("other"), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err), tt.err.Error())
	}
}

func TestWriteJSONError(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, writeJSON(&b, jsonError{Error: "task not found", Code: "not_found"}))
	assert.JSONEq(t, `{"error":"task not found","code":"not_found"}`, b.String())
	assert.True(t, strings.HasPrefix(b.String(), "{\n  \""), "indented")

	b.Reset()
	require.NoError(t, writeJSON(&b, jsonError{Error: "other"}))
	assert.JSONEq(t, `{"error":"other"}`, b.String(), "empty code is omitted")
}

func TestLoadAndRenderTree(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "prio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	e := rank.New(s)

	trip, err := e.InsertAt(ctx, nil, 0, types.TaskDraft{Title: "Plan trip"})
	require.NoError(t, err)
	_, err = e.InsertAt(ctx, nil, 1, types.TaskDraft{Title: "Pay rent"})
	require.NoError(t, err)
	_, err = e.InsertAt(ctx, &trip.ID, 0, types.TaskDraft{Title: "Book flights"})
	require.NoError(t, err)
	hotel, err := e.InsertAt(ctx, &trip.ID, 1, types.TaskDraft{Title: "Book hotel"})
	require.NoError(t, err)
	require.NoError(t, e.Complete(ctx, hotel.ID))

	nodes, err := loadTree(ctx, s, nil, false, 1)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Empty(t, nodes[0].Children, "depth 1 stops at the top level")

	nodes, err = loadTree(ctx, s, nil, true, -1)
	require.NoError(t, err)
	require.Len(t, nodes[0].Children, 2)
	assert.Equal(t, "Book flights", nodes[0].Children[0].Title)
	assert.True(t, nodes[0].Children[1].Completed, "completed tasks follow active ones")

	var b strings.Builder
	renderTree(&b, nodes, "", false, time.Now())
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Plan trip")
	assert.Contains(t, lines[1], "├─ ")
	assert.Contains(t, lines[1], "Book flights")
	assert.Contains(t, lines[2], "└─ ")
	assert.Contains(t, lines[2], "Book hotel")
	assert.Contains(t, lines[3], "Pay rent")
}

package utils

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prioritylab/prio/internal/rank"
	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/storage/sqlite"
	"github.com/prioritylab/prio/internal/types"
)

func seedStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "ids.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ids := []string{"abc123", "abd456", "ff0001", "ff0002"}
	i := 0
	engine := rank.New(store, rank.WithIDGenerator(func() string {
		id := ids[i]
		i++
		return id
	}))
	_, err = engine.InsertAt(ctx, nil, 0, types.TaskDraft{Title: "first"})
	require.NoError(t, err)
	_, err = engine.InsertAt(ctx, nil, 1, types.TaskDraft{Title: "second"})
	require.NoError(t, err)
	_, err = engine.InsertAt(ctx, types.StringPtr("abd456"), 0, types.TaskDraft{Title: "child a"})
	require.NoError(t, err)
	_, err = engine.InsertAt(ctx, types.StringPtr("abd456"), 1, types.TaskDraft{Title: "child b"})
	require.NoError(t, err)
	return store
}

func TestResolvePartialID(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	tests := []struct {
		input   string
		want    string
		wantErr string
	}{
		{input: "abc123", want: "abc123"},
		{input: "abc", want: "abc123"},
		{input: "ABD", want: "abd456"},
		{input: "ff0002", want: "ff0002"},
		{input: "@1", want: "abc123"},
		{input: "@2", want: "abd456"},
		{input: "@2.2", want: "ff0002"},
		{input: "ab", wantErr: "ambiguous"},
		{input: "ff", wantErr: "ambiguous"},
		{input: "zzz", wantErr: "no task matching"},
		{input: "@3", wantErr: "no task at @3"},
		{input: "@0", wantErr: "invalid position"},
		{input: "@x.1", wantErr: "invalid position"},
		{input: " ", wantErr: "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ResolvePartialID(ctx, store, tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePartialIDNotFoundIsTyped(t *testing.T) {
	store := seedStore(t)
	_, err := ResolvePartialID(context.Background(), store, "nope")
	assert.True(t, storage.IsNotFound(err))
}

func TestResolvePartialIDs(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	got, err := ResolvePartialIDs(ctx, store, []string{"abc", "@2.1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123", "ff0001"}, got)

	_, err = ResolvePartialIDs(ctx, store, []string{"abc", "zzz"})
	assert.Error(t, err)
}

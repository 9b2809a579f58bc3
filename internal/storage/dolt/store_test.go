package dolt

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	doltmodule "github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
)

func TestBuildServerDSN(t *testing.T) {
	cfg := Config{User: "prio", Password: "s3cret", Host: "db.local", Port: 3307, TLS: true}
	dsn := buildServerDSN(cfg, "tasks")
	for _, want := range []string{"prio:s3cret@tcp(db.local:3307)/tasks", "clientFoundRows=true", "tls=true"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN %q missing %q", dsn, want)
		}
	}
	if dsn := buildServerDSN(cfg, ""); !strings.Contains(dsn, "@tcp(db.local:3307)/?") && !strings.HasSuffix(dsn, "/") {
		t.Errorf("init DSN should not select a database: %q", dsn)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.Defaults()
	if cfg.Host != "127.0.0.1" || cfg.Port != 3307 || cfg.User != "root" || cfg.Database != "prio" {
		t.Errorf("Defaults() = %+v", cfg)
	}
}

func TestValidateDatabaseName(t *testing.T) {
	for _, ok := range []string{"prio", "prio_test", "_x1"} {
		if err := validateDatabaseName(ok); err != nil {
			t.Errorf("%q rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "1abc", "prio`; DROP", "a-b"} {
		if err := validateDatabaseName(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	if !isRetryableError(errors.New("dial tcp: connect: connection refused")) {
		t.Error("connection refused should be retryable")
	}
	if isRetryableError(errors.New("Error 1064: syntax error")) {
		t.Error("syntax errors are permanent")
	}
	if isRetryableError(nil) {
		t.Error("nil is not retryable")
	}
}

// TestServerStore runs the shared queries against a real Dolt sql-server.
// Needs Docker; opt in with PRIO_DOLT_INTEGRATION=1.
func TestServerStore(t *testing.T) {
	if testing.Short() || os.Getenv("PRIO_DOLT_INTEGRATION") != "1" {
		t.Skip("set PRIO_DOLT_INTEGRATION=1 to run against a Dolt container")
	}
	ctx := context.Background()

	ctr, err := doltmodule.Run(ctx, "dolthub/dolt-sql-server:1.43.0",
		doltmodule.WithDatabase("prio"),
		doltmodule.WithUsername("prio"),
		doltmodule.WithPassword("prio"),
	)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	store, err := New(ctx, Config{Host: host, Port: port.Int(), User: "prio", Password: "prio", Database: "prio"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Now().UTC()
	for i, id := range []string{"a", "b"} {
		require.NoError(t, store.InsertTask(ctx, &types.Task{
			ID: id, Title: id, Rank: i, CreatedAt: now, UpdatedAt: now, SyncStatus: types.SyncSynced,
		}))
	}

	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if _, err := tx.ShiftRanks(ctx, nil, 0, 1, now.Add(time.Second)); err != nil {
			return err
		}
		if err := tx.InsertTask(ctx, &types.Task{ID: "c", Title: "c", CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		_, err := tx.Enqueue(ctx, &types.QueueEntry{TaskID: "c", Operation: types.OpCreate})
		return err
	})
	require.NoError(t, err)

	sibs, err := store.ActiveSiblings(ctx, nil)
	require.NoError(t, err)
	require.Len(t, sibs, 3)
	require.Equal(t, []string{"c", "a", "b"}, []string{sibs[0].ID, sibs[1].ID, sibs[2].ID})

	// Unchanged rows still count as matched.
	same, err := store.GetTask(ctx, "c")
	require.NoError(t, err)
	require.NoError(t, store.UpdateTask(ctx, same))

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, types.OpCreate, entries[0].Operation)
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/prioritylab/prio/internal/config"
	"github.com/prioritylab/prio/internal/lockfile"
	"github.com/prioritylab/prio/internal/storage/factory"
	"github.com/prioritylab/prio/internal/syncer"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: GroupSync,
	Short:   "Keep syncing in the background until interrupted",
	Long: `Run the sync coordinator in the foreground until SIGINT or SIGTERM.

A cycle runs at start, every sync.interval, when the server comes back
after being unreachable, and shortly after another prio process changes the
database. Sending SIGUSR1 (what 'prio sync' does) requests a cycle at once.

Only one daemon may run per database; it holds <db>.daemon.lock.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		lockPath := lockfile.PathFor(dbPath)
		lock, err := lockfile.Acquire(lockPath, lockfile.LockInfo{Database: dbPath, Version: Version})
		if errors.Is(err, lockfile.ErrLockBusy) {
			msg := "a daemon is already running for " + dbPath
			if holder, _ := lockfile.Holder(lockPath); holder != nil && holder.PID != 0 {
				msg = fmt.Sprintf("%s (pid %d)", msg, holder.PID)
			}
			FatalErrorWithHint(msg, "stop it first, or use 'prio sync --local' for a one-off cycle")
		}
		if err != nil {
			fail(err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				WarnError("failed to release %s: %v", lockPath, err)
			}
		}()

		client, err := openRemote(ctx)
		if err != nil {
			_ = lock.Release()
			fail(err)
		}

		var opts []syncer.Option
		if config.GetBool("sync.watch") && config.GetString("backend") != factory.BackendDolt {
			opts = append(opts, syncer.WithWatch(dbPath, config.GetDuration("sync.debounce")))
		}
		coord := newCoordinator(client, opts...)

		stop := notifyFocus(coord.Focus)
		defer stop()

		logger.Info("daemon started",
			"pid", os.Getpid(),
			"db", dbPath,
			"remote", client.BaseURL,
			"interval", config.GetDuration("sync.interval"))
		if err := coord.Run(ctx); err != nil {
			logger.Error("daemon stopped", "error", err)
			_ = lock.Release()
			fail(err)
		}
		logger.Info("daemon stopped")
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

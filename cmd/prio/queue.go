package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/prioritylab/prio/internal/config"
	"github.com/prioritylab/prio/internal/lockfile"
	"github.com/prioritylab/prio/internal/outbox"
	"github.com/prioritylab/prio/internal/syncer"
	"github.com/prioritylab/prio/internal/types"
	"github.com/prioritylab/prio/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	Aliases: []string{"outbox"},
	GroupID: GroupSync,
	Short:   "Show changes waiting to be uploaded",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		entries, err := store.Entries(ctx)
		if err != nil {
			fail(err)
		}
		errored, err := store.SearchTasks(ctx, types.TaskFilter{SyncStatuses: []types.SyncStatus{types.SyncError}})
		if err != nil {
			fail(err)
		}
		attempt, success, err := syncer.LastSync(ctx, store)
		if err != nil {
			logger.Debug("could not read sync metadata", "error", err)
		}
		holder, _ := lockfile.Holder(lockfile.PathFor(dbPath))

		if jsonOutput {
			out := map[string]interface{}{
				"entries": entries,
				"errored": errored,
				"daemon":  holder,
			}
			if entries == nil {
				out["entries"] = []*types.QueueEntry{}
			}
			if !attempt.IsZero() {
				out["last_attempt"] = attempt
			}
			if !success.IsZero() {
				out["last_success"] = success
			}
			outputJSON(out)
			return
		}

		fmt.Printf("%-14s %s\n", ui.RenderMuted("Last sync"), formatTime(&success))
		if attempt.After(success) {
			fmt.Printf("%-14s %s %s\n", ui.RenderMuted("Last attempt"), formatTime(&attempt), ui.RenderWarn("(failed)"))
		}
		if holder != nil {
			fmt.Printf("%-14s running (pid %d)\n", ui.RenderMuted("Daemon"), holder.PID)
		} else {
			fmt.Printf("%-14s not running\n", ui.RenderMuted("Daemon"))
		}
		fmt.Println()

		if len(entries) == 0 {
			fmt.Println(ui.RenderPass(ui.IconPass + " Outbox is empty"))
		} else {
			fmt.Println(ui.RenderCategory(fmt.Sprintf("Outbox (%d)", len(entries))))
			now := time.Now()
			for _, e := range entries {
				fmt.Println(formatEntry(e, now))
			}
		}

		if len(errored) > 0 {
			fmt.Println()
			fmt.Println(ui.RenderCategory(fmt.Sprintf("Gave up (%d)", len(errored))))
			for _, t := range errored {
				fmt.Printf("  %s %s  %s\n", ui.SyncBadge(t.SyncStatus), t.Title, ui.RenderMuted(shortID(t.ID)))
			}
			fmt.Println(ui.RenderMuted("Run 'prio retry' to try these again"))
		}
	},
}

func formatEntry(e *types.QueueEntry, now time.Time) string {
	line := fmt.Sprintf("  #%-4d %-6s %s", e.QueueID, e.Operation, shortID(e.TaskID))
	if e.RetryCount > 0 {
		line += ui.RenderWarn(fmt.Sprintf("  %d/%d failed", e.RetryCount, config.GetInt("sync.max-retry")))
	}
	if e.NextAttemptAt != nil && e.NextAttemptAt.After(now) {
		line += ui.RenderMuted(fmt.Sprintf("  next try in %s", e.NextAttemptAt.Sub(now).Round(time.Second)))
	}
	if e.LastError != "" {
		line += ui.RenderMuted("  " + e.LastError)
	}
	return line
}

var retryCmd = &cobra.Command{
	Use:     "retry [id...]",
	GroupID: GroupSync,
	Short:   "Retry changes that failed too many times",
	Long: `Return tasks in the error state to pending so the next sync uploads them
again. With no ids every errored task is retried.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		ids := resolveIDs(ctx, args)
		queue := outbox.New(store, outbox.WithMaxRetry(config.GetInt("sync.max-retry")))
		reset, err := queue.ResetErrors(ctx, ids...)
		if err != nil {
			fail(err)
		}

		if jsonOutput {
			if reset == nil {
				reset = []string{}
			}
			outputJSON(map[string]interface{}{"reset": reset})
			return
		}
		if len(reset) == 0 {
			fmt.Println(ui.RenderMuted("Nothing to retry"))
			return
		}
		fmt.Printf("%s %s will be uploaded on the next sync\n", ui.RenderPass(ui.IconPass), plural(len(reset), "task"))
		if pid, ok := delegateToDaemon(); ok {
			fmt.Printf("%s Asked the running daemon (pid %d) to sync\n", ui.RenderAccent(ui.IconSync), pid)
		}
	},
}

func init() {
	rootCmd.AddCommand(queueCmd, retryCmd)
}

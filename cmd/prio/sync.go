package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/prioritylab/prio/internal/config"
	"github.com/prioritylab/prio/internal/lockfile"
	"github.com/prioritylab/prio/internal/outbox"
	"github.com/prioritylab/prio/internal/remote"
	"github.com/prioritylab/prio/internal/syncer"
	"github.com/prioritylab/prio/internal/telemetry"
	"github.com/prioritylab/prio/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: GroupSync,
	Short:   "Upload queued changes and pull the server's tasks",
	Long: `Run one sync cycle: deliver the outbox in order, then merge the server's
task list into the local store (newest updatedAt wins).

When 'prio daemon' is running for this database the request is handed to it
instead, unless --local is given.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		local, _ := cmd.Flags().GetBool("local")

		if !local {
			if pid, ok := delegateToDaemon(); ok {
				if jsonOutput {
					outputJSON(map[string]interface{}{"delegated": true, "pid": pid})
					return
				}
				fmt.Printf("%s Asked the running daemon (pid %d) to sync\n", ui.RenderAccent(ui.IconSync), pid)
				return
			}
		}

		client, err := openRemote(ctx)
		if err != nil {
			fail(err)
		}
		report := newCoordinator(client).Sync(ctx, syncer.TriggerManual)

		if jsonOutput {
			outputJSON(reportJSON(report))
		} else {
			printReport(report)
		}
		if report.Err() != nil {
			closeStore()
			os.Exit(1)
		}
	},
}

// newCoordinator wires a coordinator over the open store with the
// configured retry limit and probe interval.
func newCoordinator(svc remote.Service, opts ...syncer.Option) *syncer.Coordinator {
	queue := outbox.New(store, outbox.WithMaxRetry(config.GetInt("sync.max-retry")))
	base := []syncer.Option{
		syncer.WithLogger(logger),
		syncer.WithMetrics(telemetry.NewSyncMetrics()),
		syncer.WithQueue(queue),
		syncer.WithInterval(config.GetDuration("sync.interval")),
		syncer.WithProbeInterval(config.GetDuration("sync.probe-interval")),
	}
	return syncer.New(store, svc, engine, append(base, opts...)...)
}

// delegateToDaemon signals a live daemon holding this database's lock.
func delegateToDaemon() (int, bool) {
	holder, err := lockfile.Holder(lockfile.PathFor(dbPath))
	if err != nil || holder == nil || holder.PID == 0 {
		return 0, false
	}
	if err := signalDaemon(holder.PID); err != nil {
		logger.Debug("could not signal daemon", "pid", holder.PID, "error", err)
		return 0, false
	}
	return holder.PID, true
}

type syncReportJSON struct {
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Skipped    bool      `json:"skipped,omitempty"`
	Offline    bool      `json:"offline,omitempty"`
	Backfilled int       `json:"backfilled"`
	Delivered  int       `json:"delivered"`
	Retried    int       `json:"retried"`
	Dropped    int       `json:"dropped"`
	Exhausted  []string  `json:"exhausted,omitempty"`
	Inserted   int       `json:"inserted"`
	Overwrote  int       `json:"overwritten"`
	KeptLocal  int       `json:"kept_local"`
	Normalized int       `json:"normalized"`
	Errors     []string  `json:"errors,omitempty"`
}

func reportJSON(r *syncer.Report) syncReportJSON {
	out := syncReportJSON{
		Trigger:    string(r.Trigger),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Skipped:    r.Skipped,
		Offline:    r.Offline,
		Backfilled: r.Backfilled,
		Delivered:  r.Delivered,
		Retried:    r.Retried,
		Dropped:    r.Dropped,
		Normalized: r.Normalized,
	}
	for _, ex := range r.Exhausted {
		out.Exhausted = append(out.Exhausted, ex.TaskID)
	}
	if r.Merge != nil {
		out.Inserted = r.Merge.Inserted
		out.Overwrote = r.Merge.Overwritten
		out.KeptLocal = r.Merge.Pending
	}
	for _, err := range r.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}

func printReport(r *syncer.Report) {
	switch {
	case r.Skipped:
		fmt.Println(ui.RenderWarn(ui.IconWarn + " A sync is already running"))
		return
	case r.Offline:
		fmt.Println(ui.RenderWarn(ui.IconWarn + " Server unreachable, changes stay queued"))
		return
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("uploaded %s", plural(r.Delivered, "change")))
	if r.Merge != nil {
		parts = append(parts, fmt.Sprintf("pulled %d new, %d updated", r.Merge.Inserted, r.Merge.Overwritten))
		if r.Merge.Pending > 0 {
			parts = append(parts, fmt.Sprintf("kept %d newer local", r.Merge.Pending))
		}
	}
	if r.Normalized > 0 {
		parts = append(parts, fmt.Sprintf("repaired %s", plural(r.Normalized, "list")))
	}
	icon := ui.RenderPass(ui.IconPass)
	if r.Err() != nil {
		icon = ui.RenderFail(ui.IconFail)
	}
	fmt.Printf("%s Sync: %s (%s)\n", icon, strings.Join(parts, ", "),
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	if r.Retried > 0 {
		fmt.Printf("  %s %s will be retried\n", ui.RenderWarn(ui.IconWarn), plural(r.Retried, "change"))
	}
	for _, ex := range r.Exhausted {
		fmt.Printf("  %s gave up on %s %s after %d attempts: %v\n",
			ui.RenderFail(ui.IconFail), ex.Operation, shortID(ex.TaskID), ex.Attempts, ex.Err)
	}
	if len(r.Exhausted) > 0 {
		fmt.Printf("  %s\n", ui.RenderMuted("Run 'prio retry' to try again"))
	}
	for _, err := range r.Errors {
		fmt.Fprintf(os.Stderr, "  %s %v\n", ui.RenderFail(ui.IconFail), err)
	}
}

func init() {
	syncCmd.Flags().Bool("local", false, "Sync in this process even if a daemon is running")
	rootCmd.AddCommand(syncCmd)
}

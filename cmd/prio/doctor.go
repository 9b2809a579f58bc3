package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/prioritylab/prio/internal/config"
	"github.com/prioritylab/prio/internal/types"
	"github.com/prioritylab/prio/internal/ui"
)

// doctorCheck is one line of `prio doctor` output.
type doctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // ok, warning, error
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`
}

const (
	statusOK      = "ok"
	statusWarning = "warning"
	statusError   = "error"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: GroupSetup,
	Short:   "Check the local database for problems",
	Long: `Check that every list has positions 1..N with no gaps or duplicates,
that every subtask's parent exists, and report sync trouble.

With --fix, broken lists are renumbered in their current order.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		fix, _ := cmd.Flags().GetBool("fix")

		checks := []doctorCheck{
			checkDensity(ctx, fix),
			checkOrphans(ctx),
			checkSyncState(ctx),
			checkRemote(),
		}

		failed := false
		for _, c := range checks {
			if c.Status == statusError {
				failed = true
			}
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{"checks": checks, "ok": !failed})
		} else {
			for _, c := range checks {
				icon := ui.RenderPass(ui.IconPass)
				switch c.Status {
				case statusWarning:
					icon = ui.RenderWarn(ui.IconWarn)
				case statusError:
					icon = ui.RenderFail(ui.IconFail)
				}
				fmt.Printf("%s %-10s %s\n", icon, c.Name, c.Message)
				if c.Fix != "" {
					fmt.Printf("  %s\n", ui.RenderMuted(c.Fix))
				}
			}
		}
		if failed {
			closeStore()
			os.Exit(1)
		}
	},
}

func checkDensity(ctx context.Context, fix bool) doctorCheck {
	c := doctorCheck{Name: "ranks"}
	violations, err := engine.CheckDensity(ctx)
	if err != nil {
		return doctorCheck{Name: c.Name, Status: statusError, Message: err.Error()}
	}
	if len(violations) == 0 {
		c.Status, c.Message = statusOK, "every list is numbered 1..N"
		return c
	}
	if !fix {
		c.Status = statusError
		c.Message = fmt.Sprintf("%s with gaps or duplicate positions", plural(len(violations), "list"))
		c.Fix = "Run 'prio doctor --fix' to renumber them"
		return c
	}
	n, err := engine.NormalizeAll(ctx)
	if err != nil {
		return doctorCheck{Name: c.Name, Status: statusError, Message: fmt.Sprintf("repair failed: %v", err)}
	}
	c.Status = statusWarning
	c.Message = fmt.Sprintf("renumbered %s (%s changed)", plural(len(violations), "list"), plural(n, "task"))
	return c
}

func checkOrphans(ctx context.Context) doctorCheck {
	c := doctorCheck{Name: "parents"}
	all, err := store.SearchTasks(ctx, types.TaskFilter{})
	if err != nil {
		return doctorCheck{Name: c.Name, Status: statusError, Message: err.Error()}
	}
	ids := make(map[string]bool, len(all))
	for _, t := range all {
		ids[t.ID] = true
	}
	orphans := 0
	for _, t := range all {
		if t.ParentID != nil && !ids[*t.ParentID] {
			orphans++
		}
	}
	if orphans == 0 {
		c.Status, c.Message = statusOK, fmt.Sprintf("%s, all parents present", plural(len(all), "task"))
		return c
	}
	c.Status = statusError
	c.Message = fmt.Sprintf("%s point at a missing parent", plural(orphans, "task"))
	c.Fix = "Run 'prio sync' to pull the parents, or delete the subtasks with 'prio rm'"
	return c
}

func checkSyncState(ctx context.Context) doctorCheck {
	c := doctorCheck{Name: "sync"}
	count := func(s types.SyncStatus) (int, error) {
		tasks, err := store.SearchTasks(ctx, types.TaskFilter{SyncStatuses: []types.SyncStatus{s}})
		return len(tasks), err
	}
	errored, err := count(types.SyncError)
	if err != nil {
		return doctorCheck{Name: c.Name, Status: statusError, Message: err.Error()}
	}
	pending, err := count(types.SyncPending)
	if err != nil {
		return doctorCheck{Name: c.Name, Status: statusError, Message: err.Error()}
	}
	entries, err := store.Entries(ctx)
	if err != nil {
		return doctorCheck{Name: c.Name, Status: statusError, Message: err.Error()}
	}

	switch {
	case errored > 0:
		c.Status = statusWarning
		c.Message = fmt.Sprintf("%s gave up after repeated failures", plural(errored, "task"))
		c.Fix = "Run 'prio retry' once the server is healthy"
	case pending > 0 || len(entries) > 0:
		c.Status = statusOK
		c.Message = fmt.Sprintf("%s pending, %s queued", plural(pending, "task"), plural(len(entries), "change"))
	default:
		c.Status, c.Message = statusOK, "everything synced"
	}
	return c
}

func checkRemote() doctorCheck {
	c := doctorCheck{Name: "remote"}
	url := config.GetString("remote.url")
	if url == "" {
		c.Status = statusWarning
		c.Message = "remote.url is not set; tasks stay on this machine"
		c.Fix = "Run 'prio config set remote.url https://...'"
		return c
	}
	c.Status, c.Message = statusOK, url
	if config.GetString("remote.token") == "" && config.GetString("remote.token-file") == "" {
		c.Status = statusWarning
		c.Message = url + " (no token configured)"
	}
	return c
}

func init() {
	doctorCmd.Flags().Bool("fix", false, "Repair broken lists")
	rootCmd.AddCommand(doctorCmd)
}

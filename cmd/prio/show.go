package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/prioritylab/prio/internal/types"
	"github.com/prioritylab/prio/internal/ui"
)

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: GroupTasks,
	Short:   "Show task details",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		id := resolveID(ctx, args[0])
		task, err := store.GetTask(ctx, id)
		if err != nil {
			fail(err)
		}
		children, err := store.Children(ctx, id)
		if err != nil {
			fail(err)
		}
		entries, err := store.EntriesForTask(ctx, id)
		if err != nil {
			fail(err)
		}

		if jsonOutput {
			outputJSON(struct {
				*types.Task
				Children []*types.Task       `json:"children"`
				Queue    []*types.QueueEntry `json:"queue"`
			}{task, children, entries})
			return
		}

		now := time.Now()
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n", ui.RenderCategory(ui.RenderTitle(task)))
		b.WriteString(ui.RenderSeparator() + "\n")
		row := func(label, value string) {
			fmt.Fprintf(&b, "%-14s %s\n", ui.RenderMuted(label), value)
		}
		row("ID", task.ID)
		if task.Completed {
			row("Status", ui.RenderPass("done "+formatTime(task.CompletedAt)))
		} else {
			row("Position", fmt.Sprintf("%d", task.Rank+1))
		}
		if task.ParentID != nil {
			parent := *task.ParentID
			if p, err := store.GetTask(ctx, parent); err == nil {
				parent = fmt.Sprintf("%s (%s)", p.Title, shortID(p.ID))
			}
			row("Parent", parent)
		}
		if task.Deadline != nil {
			row("Deadline", ui.RenderDeadline(task.Deadline, now))
		}
		if len(task.Collaborators) > 0 {
			row("Collaborators", strings.Join(task.Collaborators, ", "))
		}
		row("Sync", ui.SyncLabel(task.SyncStatus))
		row("Last synced", formatTime(task.LastSyncedAt))
		row("Created", formatTime(&task.CreatedAt))
		row("Updated", formatTime(&task.UpdatedAt))
		for _, e := range entries {
			line := fmt.Sprintf("%s queued %s", e.Operation, e.EnqueuedAt.Local().Format(time.Kitchen))
			if e.RetryCount > 0 {
				line += fmt.Sprintf(", %s, last error: %s", plural(e.RetryCount, "attempt"), e.LastError)
			}
			row("Outbox", line)
		}

		if task.Description != "" {
			b.WriteString("\n")
			b.WriteString(ui.RenderMarkdown(task.Description))
		}

		if len(children) > 0 {
			b.WriteString("\n" + ui.RenderCategory("Subtasks") + "\n")
			nodes := make([]*listNode, 0, len(children))
			for _, c := range children {
				nodes = append(nodes, &listNode{Task: c})
			}
			renderTree(&b, nodes, "", true, now)
		}
		fmt.Print(b.String())
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

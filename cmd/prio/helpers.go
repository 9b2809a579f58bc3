package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prioritylab/prio/internal/types"
	"github.com/prioritylab/prio/internal/ui"
	"github.com/prioritylab/prio/internal/utils"
)

// shortIDLength is how much of a task id list output shows. Any unique
// prefix is accepted back.
const shortIDLength = 8

// resolveID turns a user reference (full id, unique prefix or @position)
// into a task id, exiting on failure.
func resolveID(ctx context.Context, ref string) string {
	id, err := utils.ResolvePartialID(ctx, store, ref)
	if err != nil {
		fail(err)
	}
	return id
}

func resolveIDs(ctx context.Context, refs []string) []string {
	ids, err := utils.ResolvePartialIDs(ctx, store, refs)
	if err != nil {
		fail(err)
	}
	return ids
}

func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

// formatTaskLine renders one row of `prio list`.
func formatTaskLine(t *types.Task, prefix string, now time.Time) string {
	var b strings.Builder
	b.WriteString(prefix)
	if t.Completed {
		b.WriteString(ui.RenderMuted("  " + ui.IconPass + " "))
	} else {
		b.WriteString(ui.RenderRank(t.Rank))
		b.WriteString(" ")
	}
	b.WriteString(ui.SyncBadge(t.SyncStatus))
	b.WriteString(" ")
	b.WriteString(ui.RenderTitle(t))
	if d := ui.RenderDeadline(t.Deadline, now); d != "" && !t.Completed {
		b.WriteString("  ")
		b.WriteString(d)
	}
	if len(t.Collaborators) > 0 {
		b.WriteString("  ")
		b.WriteString(ui.RenderMuted("@" + strings.Join(t.Collaborators, " @")))
	}
	b.WriteString("  ")
	b.WriteString(ui.RenderMuted(shortID(t.ID)))
	return b.String()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

package syncer

import (
	"context"

	"github.com/prioritylab/prio/internal/merge"
)

// reconcile fetches the server's full set, merges it last-write-wins and
// repairs the rank density of every scope the merge rewrote.
func (c *Coordinator) reconcile(ctx context.Context, report *Report) {
	if ctx.Err() != nil || !c.monitor.Online() {
		return
	}
	server, err := c.remote.List(ctx)
	if err != nil {
		c.metrics.Failure(ctx, "reconcile")
		report.fail("reconcile", err)
		if unreachable(err) {
			c.monitor.MarkOffline()
		}
		return
	}

	plan, res, err := merge.Reconcile(ctx, c.store, server, c.now())
	if err != nil {
		report.fail("reconcile", err)
		return
	}
	report.Merge = res
	for _, d := range plan.Decisions {
		if d.Action == merge.ActionSkip {
			c.log.Warn("ignoring invalid task from server", "task", d.ID, "reason", d.Reason)
		}
	}

	if len(res.Scopes) == 0 || c.engine == nil {
		return
	}
	n, err := c.engine.NormalizeScopes(ctx, res.Scopes)
	report.Normalized = n
	if err != nil {
		report.fail("normalize", err)
	}
}

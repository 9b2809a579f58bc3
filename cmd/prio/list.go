package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
	"github.com/prioritylab/prio/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: GroupTasks,
	Short:   "List tasks in priority order",
	Long: `List the active tasks of one scope, most important first.

The badge after the position shows replication state:
  ✓ synced   • pending   ↻ syncing   ⚠ conflict   ✗ error (see 'prio retry')`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		all, _ := cmd.Flags().GetBool("all")
		tree, _ := cmd.Flags().GetBool("tree")
		noPager, _ := cmd.Flags().GetBool("no-pager")

		var parentID *string
		if ref, _ := cmd.Flags().GetString("parent"); ref != "" {
			parentID = types.StringPtr(resolveID(ctx, ref))
		}

		depth := 1
		if tree {
			depth = -1
		}
		nodes, err := loadTree(ctx, store, parentID, all, depth)
		if err != nil {
			fail(err)
		}

		if jsonOutput {
			if nodes == nil {
				nodes = []*listNode{}
			}
			outputJSON(nodes)
			return
		}
		if len(nodes) == 0 {
			fmt.Println(ui.RenderMuted("No tasks. Add one with: prio add \"...\""))
			return
		}

		var b strings.Builder
		renderTree(&b, nodes, "", false, time.Now())
		if err := ui.ToPager(b.String(), ui.PagerOptions{NoPager: noPager}); err != nil {
			fail(err)
		}
	},
}

// listNode is a task with its loaded children.
type listNode struct {
	*types.Task
	Children []*listNode `json:"children,omitempty"`
}

// loadTree reads one scope and, while depth allows, the scopes below it.
// A negative depth means unlimited. Active tasks come first in rank order,
// then completed ones, most recently completed first.
func loadTree(ctx context.Context, r storage.Reader, parentID *string, all bool, depth int) ([]*listNode, error) {
	if depth == 0 {
		return nil, nil
	}
	tasks, err := r.ActiveSiblings(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if all {
		done := true
		filter := types.TaskFilter{ParentID: parentID, TopLevel: parentID == nil, Completed: &done}
		completed, err := r.SearchTasks(ctx, filter)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(completed, func(i, j int) bool {
			return completedAt(completed[i]).After(completedAt(completed[j]))
		})
		tasks = append(tasks, completed...)
	}

	nodes := make([]*listNode, 0, len(tasks))
	for _, t := range tasks {
		node := &listNode{Task: t}
		id := t.ID
		if node.Children, err = loadTree(ctx, r, &id, all, depth-1); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func completedAt(t *types.Task) time.Time {
	if t.CompletedAt == nil {
		return time.Time{}
	}
	return *t.CompletedAt
}

// renderTree writes nodes one per line. Nested levels are drawn with tree
// connectors below their parent.
func renderTree(b *strings.Builder, nodes []*listNode, indent string, nested bool, now time.Time) {
	for i, n := range nodes {
		last := i == len(nodes)-1
		prefix, childIndent := "", ""
		if nested {
			if last {
				prefix, childIndent = indent+ui.TreeLast, indent+ui.TreeIndent
			} else {
				prefix, childIndent = indent+ui.TreeChild, indent+ui.TreePipe
			}
		}
		b.WriteString(formatTaskLine(n.Task, prefix, now))
		b.WriteString("\n")
		renderTree(b, n.Children, childIndent, true, now)
	}
}

func init() {
	listCmd.Flags().BoolP("all", "a", false, "Include completed tasks")
	listCmd.Flags().String("parent", "", "List the children of this task")
	listCmd.Flags().BoolP("tree", "t", false, "Show subtasks indented under their parents")
	listCmd.Flags().Bool("no-pager", false, "Disable pager output")
	rootCmd.AddCommand(listCmd)
}

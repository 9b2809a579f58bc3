package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
	"github.com/prioritylab/prio/internal/ui"
	"github.com/prioritylab/prio/internal/utils"
)

var doneCmd = &cobra.Command{
	Use:     "done <id>...",
	Aliases: []string{"complete"},
	GroupID: GroupTasks,
	Short:   "Mark tasks done; the tasks below move up",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		ids := resolveIDs(ctx, args)
		var done []*types.Task
		for _, id := range ids {
			if err := engine.Complete(ctx, id); err != nil {
				fail(err)
			}
			task, err := store.GetTask(ctx, id)
			if err != nil {
				fail(err)
			}
			done = append(done, task)
		}
		if jsonOutput {
			outputJSON(done)
			return
		}
		for _, t := range done {
			fmt.Printf("%s Done: %s\n", ui.RenderPass(ui.IconPass), t.Title)
		}
	},
}

var reopenCmd = &cobra.Command{
	Use:     "reopen <id>",
	GroupID: GroupTasks,
	Short:   "Reopen a completed task at the bottom of its list",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		task, err := engine.Reopen(ctx, resolveID(ctx, args[0]))
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(task)
			return
		}
		fmt.Printf("%s Reopened %s at position %d\n", ui.RenderPass(ui.IconPass), task.Title, task.Rank+1)
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>...",
	Aliases: []string{"delete"},
	GroupID: GroupTasks,
	Short:   "Delete tasks together with their subtasks",
	Long: `Delete tasks together with all their subtasks.

Deleting a task that does not exist is not an error. When a task has
subtasks and stdin is a terminal, prio asks first unless --force is given.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		force, _ := cmd.Flags().GetBool("force")

		var deleted []string
		for _, ref := range args {
			id, err := utils.ResolvePartialID(ctx, store, ref)
			if storage.IsNotFound(err) {
				if !jsonOutput {
					fmt.Fprintf(os.Stderr, "%s nothing to delete for %s\n", ui.RenderMuted(ui.IconSkip), ref)
				}
				continue
			}
			if err != nil {
				fail(err)
			}
			if !force && !confirmDelete(id) {
				continue
			}
			if err := engine.Delete(ctx, id); err != nil {
				fail(err)
			}
			deleted = append(deleted, id)
		}

		if jsonOutput {
			if deleted == nil {
				deleted = []string{}
			}
			outputJSON(map[string]interface{}{"deleted": deleted})
			return
		}
		for _, id := range deleted {
			fmt.Printf("%s Deleted %s\n", ui.RenderPass(ui.IconPass), shortID(id))
		}
	},
}

// confirmDelete asks before removing a task that has subtasks. Without a
// terminal there is nobody to ask and the delete goes ahead.
func confirmDelete(id string) bool {
	children, err := store.Children(rootCtx, id)
	if err != nil || len(children) == 0 || !stdinIsTerminal() || jsonOutput {
		return true
	}
	task, err := store.GetTask(rootCtx, id)
	if err != nil {
		return true
	}
	var ok bool
	err = huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Delete %q and its %s?", task.Title, plural(len(children), "subtask"))).
			Value(&ok),
	)).WithTheme(huh.ThemeDracula()).Run()
	return err == nil && ok
}

var mvCmd = &cobra.Command{
	Use:     "mv <id>",
	Aliases: []string{"move"},
	GroupID: GroupTasks,
	Short:   "Move a task to another position or parent",
	Long: `Move a task to another one-based position, optionally under a new parent.

Examples:
  prio mv @4 --rank 1              # promote to the top
  prio mv 3f2b --parent @1         # make it the last subtask of @1
  prio mv 3f2b --top-level --rank 2`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		id := resolveID(ctx, args[0])
		task, err := store.GetTask(ctx, id)
		if err != nil {
			fail(err)
		}

		parentRef, _ := cmd.Flags().GetString("parent")
		topLevel, _ := cmd.Flags().GetBool("top-level")
		if parentRef != "" && topLevel {
			fail(storage.Validationf("--parent and --top-level are mutually exclusive"))
		}
		newParent := task.ParentID
		switch {
		case topLevel:
			newParent = nil
		case parentRef != "":
			newParent = types.StringPtr(resolveID(ctx, parentRef))
		}

		target := bottomRank
		if cmd.Flags().Changed("rank") {
			position, _ := cmd.Flags().GetInt("rank")
			if position < 1 {
				fail(storage.Validationf("--rank must be 1 or more (got %d)", position))
			}
			target = position - 1
		} else if parentRef == "" && !topLevel {
			fail(storage.Validationf("nothing to do: give --rank, --parent or --top-level"))
		}

		moved, err := engine.Move(ctx, id, newParent, target)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(moved)
			return
		}
		fmt.Printf("%s Moved %s to position %d\n", ui.RenderPass(ui.IconPass), moved.Title, moved.Rank+1)
	},
}

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	GroupID: GroupTasks,
	Short:   "Change a task's title, description, deadline or collaborators",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		id := resolveID(ctx, args[0])

		var patch types.TaskPatch
		if cmd.Flags().Changed("title") {
			title, _ := cmd.Flags().GetString("title")
			patch.Title = &title
		}
		if cmd.Flags().Changed("desc") {
			desc, _ := cmd.Flags().GetString("desc")
			patch.Description = &desc
		}
		if cmd.Flags().Changed("deadline") {
			expr, _ := cmd.Flags().GetString("deadline")
			if expr == "" || expr == "none" {
				patch.ClearDeadline = true
			} else {
				deadline, err := parseDeadline(expr)
				if err != nil {
					fail(err)
				}
				patch.Deadline = &deadline
			}
		}
		if cmd.Flags().Changed("collab") {
			collab, _ := cmd.Flags().GetStringSlice("collab")
			cleaned := cleanCollaborators(collab)
			patch.Collaborators = &cleaned
		}
		if patch.IsEmpty() {
			fail(storage.Validationf("nothing to change: give --title, --desc, --deadline or --collab"))
		}

		task, err := engine.Update(ctx, id, patch)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(task)
			return
		}
		fmt.Printf("%s Updated %s\n", ui.RenderPass(ui.IconPass), task.Title)
	},
}

func init() {
	rmCmd.Flags().BoolP("force", "f", false, "Do not ask before deleting subtasks")

	mvCmd.Flags().Int("rank", 0, "Target one-based position (default: bottom)")
	mvCmd.Flags().String("parent", "", "New parent task")
	mvCmd.Flags().Bool("top-level", false, "Move to the top-level list")

	editCmd.Flags().String("title", "", "New title")
	editCmd.Flags().StringP("desc", "d", "", "New description (markdown)")
	editCmd.Flags().String("deadline", "", "New deadline, or \"none\" to clear")
	editCmd.Flags().StringSlice("collab", nil, "Replace collaborators (comma-separated, empty to clear)")

	rootCmd.AddCommand(doneCmd, reopenCmd, rmCmd, mvCmd, editCmd)
}

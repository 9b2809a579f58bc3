package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/prioritylab/prio/internal/placement"
	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/timeparsing"
	"github.com/prioritylab/prio/internal/types"
	"github.com/prioritylab/prio/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add <title>",
	GroupID: GroupTasks,
	Short:   "Add a task, placing it by comparison or at a given position",
	Long: `Add a task to the top-level list or under --parent.

Without a placement flag, and when stdin is a terminal, prio walks the
existing tasks from the top and asks whether the new one matters more.
Answer "higher" to place it there, "lower" to move on, or pick a position
directly. Otherwise the task is appended at the bottom.

Positions are one-based, as printed by 'prio list'.

Examples:
  prio add "Renew passport" --deadline "next friday"
  prio add "Book flights" --parent @2 --top
  prio add "Write report" --rank 3 --collab ana,li`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		draft, err := draftFromFlags(cmd, strings.Join(args, " "))
		if err != nil {
			fail(err)
		}

		var parentID *string
		if ref, _ := cmd.Flags().GetString("parent"); ref != "" {
			parentID = types.StringPtr(resolveID(ctx, ref))
		}

		target, interactive, err := placementFromFlags(cmd)
		if err != nil {
			fail(err)
		}

		var task *types.Task
		if interactive {
			task, err = placeInteractively(ctx, parentID, draft)
		} else {
			task, err = engine.InsertAt(ctx, parentID, target, draft)
		}
		if err != nil {
			fail(err)
		}
		if task == nil {
			fmt.Fprintln(os.Stderr, "Cancelled, nothing added.")
			return
		}

		if jsonOutput {
			outputJSON(task)
			return
		}
		fmt.Printf("%s Added %s at position %d\n", ui.RenderPass(ui.IconPass), ui.RenderAccent(shortID(task.ID)), task.Rank+1)
	},
}

// bottomRank is past the end of any scope; InsertAt clamps it to N.
const bottomRank = int(^uint(0) >> 1)

// placementFromFlags returns the zero-based target rank, or interactive=true
// when the comparison flow should decide.
func placementFromFlags(cmd *cobra.Command) (target int, interactive bool, err error) {
	top, _ := cmd.Flags().GetBool("top")
	bottom, _ := cmd.Flags().GetBool("bottom")
	forced, _ := cmd.Flags().GetBool("interactive")
	position, _ := cmd.Flags().GetInt("rank")

	set := 0
	for _, b := range []bool{top, bottom, forced, cmd.Flags().Changed("rank")} {
		if b {
			set++
		}
	}
	if set > 1 {
		return 0, false, storage.Validationf("--top, --bottom, --rank and --interactive are mutually exclusive")
	}

	switch {
	case top:
		return 0, false, nil
	case bottom:
		return bottomRank, false, nil
	case cmd.Flags().Changed("rank"):
		if position < 1 {
			return 0, false, storage.Validationf("--rank must be 1 or more (got %d)", position)
		}
		return position - 1, false, nil
	case forced:
		if !stdinIsTerminal() {
			return 0, false, storage.Validationf("--interactive needs a terminal")
		}
		return 0, true, nil
	}
	return bottomRank, stdinIsTerminal() && !jsonOutput, nil
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// draftFromFlags collects the content flags shared by add.
func draftFromFlags(cmd *cobra.Command, title string) (types.TaskDraft, error) {
	draft := types.TaskDraft{Title: strings.TrimSpace(title)}
	draft.Description, _ = cmd.Flags().GetString("desc")
	if expr, _ := cmd.Flags().GetString("deadline"); expr != "" {
		deadline, err := parseDeadline(expr)
		if err != nil {
			return draft, err
		}
		draft.Deadline = &deadline
	}
	collab, _ := cmd.Flags().GetStringSlice("collab")
	draft.Collaborators = cleanCollaborators(collab)
	if err := draft.Validate(); err != nil {
		return draft, storage.Validationf("%v", err)
	}
	return draft, nil
}

func parseDeadline(expr string) (time.Time, error) {
	t, err := timeparsing.ParseRelativeTime(expr, time.Now())
	if err != nil {
		return time.Time{}, storage.Validationf("invalid --deadline: %v", err)
	}
	return t.UTC(), nil
}

func cleanCollaborators(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// placeInteractively runs the comparison flow. A nil task means the user
// cancelled.
func placeInteractively(ctx context.Context, parentID *string, draft types.TaskDraft) (*types.Task, error) {
	siblings, err := store.ActiveSiblings(ctx, parentID)
	if err != nil {
		return nil, err
	}

	resolver := placement.NewResolver(engine, parentID)
	m, err := resolver.Send(ctx, placement.Start{Draft: draft, Siblings: siblings})
	if err != nil {
		return nil, err
	}

	for m.State == placement.StateComparing {
		ev, err := askComparison(draft.Title, resolver.Question(), m.CurrentRank, len(m.Siblings))
		if err != nil {
			return nil, err
		}
		if m, err = resolver.Send(ctx, ev); err != nil {
			return nil, err
		}
	}

	if m.State == placement.StatePlacing {
		ev, err := askPosition(len(m.Siblings))
		if err != nil {
			return nil, err
		}
		if m, err = resolver.Send(ctx, ev); err != nil {
			return nil, err
		}
	}
	return resolver.Created(), nil
}

func askComparison(title string, other *types.Task, pos, total int) (placement.Event, error) {
	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Is %q more important than %q?", title, other.Title)).
				Description(fmt.Sprintf("Comparing with position %d of %d", pos+1, total)).
				Options(
					huh.NewOption("Higher - place it here", "higher"),
					huh.NewOption("Lower - keep going", "lower"),
					huh.NewOption("Pick a position", "skip"),
					huh.NewOption("Cancel", "cancel"),
				).
				Value(&choice),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return placement.Cancel{}, nil
		}
		return nil, fmt.Errorf("prompt failed: %w", err)
	}
	switch choice {
	case "higher":
		return placement.Answer{Higher: true}, nil
	case "lower":
		return placement.Answer{Higher: false}, nil
	case "skip":
		return placement.Skip{}, nil
	default:
		return placement.Cancel{}, nil
	}
}

func askPosition(siblings int) (placement.Event, error) {
	var raw string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("Position (1-%d)", siblings+1)).
				Placeholder(strconv.Itoa(siblings + 1)).
				Value(&raw).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 || n > siblings+1 {
						return fmt.Errorf("enter a number from 1 to %d", siblings+1)
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return placement.Cancel{}, nil
		}
		return nil, fmt.Errorf("prompt failed: %w", err)
	}
	if raw == "" {
		return placement.Place{Rank: siblings}, nil
	}
	n, _ := strconv.Atoi(raw)
	return placement.Place{Rank: n - 1}, nil
}

func init() {
	addCmd.Flags().String("parent", "", "Parent task (id, prefix or @position)")
	addCmd.Flags().StringP("desc", "d", "", "Description (markdown)")
	addCmd.Flags().String("deadline", "", "Deadline: +2d, 2026-03-01, \"next friday at 5pm\"")
	addCmd.Flags().StringSlice("collab", nil, "Collaborators (comma-separated)")
	addCmd.Flags().Bool("top", false, "Place at the top")
	addCmd.Flags().Bool("bottom", false, "Place at the bottom")
	addCmd.Flags().Int("rank", 0, "Place at this one-based position")
	addCmd.Flags().BoolP("interactive", "i", false, "Always place by comparison")
	rootCmd.AddCommand(addCmd)
}

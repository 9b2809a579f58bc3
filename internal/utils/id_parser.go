package utils

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
)

// maxAmbiguousShown caps how many candidates an ambiguity error lists.
const maxAmbiguousShown = 5

// ResolvePartialID resolves a task reference to a full task ID.
// Supports:
// - Full IDs: "3f2b9c1e-..." → itself
// - Unique prefixes: "3f2b" → "3f2b9c1e-..."
// - Positions: "@2" is the second active top-level task, "@2.1" the first
//   active child of that task (the numbers `prio list` prints)
//
// Returns an error wrapping storage.ErrNotFound when nothing matches and a
// validation error when a prefix is ambiguous.
func ResolvePartialID(ctx context.Context, store storage.Reader, input string) (string, error) {
	if store == nil {
		return "", fmt.Errorf("cannot resolve task %q: storage is nil", input)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return "", storage.Validationf("empty task reference")
	}
	if strings.HasPrefix(input, "@") {
		return resolvePosition(ctx, store, input)
	}

	if task, err := store.GetTask(ctx, input); err == nil {
		return task.ID, nil
	} else if !storage.IsNotFound(err) {
		return "", err
	}

	matches, err := store.SearchTasks(ctx, types.TaskFilter{IDPrefix: strings.ToLower(input), Limit: maxAmbiguousShown + 1})
	if err != nil {
		return "", fmt.Errorf("failed to search tasks: %w", err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no task matching %q", storage.ErrNotFound, input)
	case 1:
		return matches[0].ID, nil
	}

	ids := make([]string, 0, len(matches))
	for i, m := range matches {
		if i == maxAmbiguousShown {
			ids = append(ids, "...")
			break
		}
		ids = append(ids, m.ID)
	}
	return "", storage.Validationf("ambiguous ID %q matches %s\nUse more characters to disambiguate", input, strings.Join(ids, ", "))
}

// ResolvePartialIDs resolves multiple task references.
func ResolvePartialIDs(ctx context.Context, store storage.Reader, inputs []string) ([]string, error) {
	resolved := make([]string, 0, len(inputs))
	for _, input := range inputs {
		fullID, err := ResolvePartialID(ctx, store, input)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, fullID)
	}
	return resolved, nil
}

// resolvePosition walks a dotted list of one-based positions down the
// active task tree.
func resolvePosition(ctx context.Context, store storage.Reader, input string) (string, error) {
	var parent *string
	var id string
	for _, part := range strings.Split(strings.TrimPrefix(input, "@"), ".") {
		pos, err := strconv.Atoi(part)
		if err != nil || pos < 1 {
			return "", storage.Validationf("invalid position %q in %q", part, input)
		}
		siblings, err := store.ActiveSiblings(ctx, parent)
		if err != nil {
			return "", err
		}
		if pos > len(siblings) {
			return "", fmt.Errorf("%w: no task at %s (scope has %d)", storage.ErrNotFound, input, len(siblings))
		}
		id = siblings[pos-1].ID
		parent = &id
	}
	return id, nil
}

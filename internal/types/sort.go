package types

import (
	"sort"
	"strings"
)

// SortField identifies a task attribute used for ordering list output.
type SortField string

// Sort fields
const (
	SortFieldRank     SortField = "rank"
	SortFieldDeadline SortField = "deadline"
	SortFieldCreated  SortField = "created"
	SortFieldUpdated  SortField = "updated"
	SortFieldTitle    SortField = "title"
)

// SortDirection is ascending or descending.
type SortDirection string

// Sort directions
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortOption is one key of a multi-key ordering.
type SortOption struct {
	Field     SortField
	Direction SortDirection
}

// DefaultSortOptions orders by rank, breaking ties by most recent update.
func DefaultSortOptions() []SortOption {
	return []SortOption{
		{Field: SortFieldRank, Direction: SortAsc},
		{Field: SortFieldUpdated, Direction: SortDesc},
	}
}

// ParseSortOrder converts a comma-delimited string (e.g. "deadline-asc,rank")
// into sort options. Unrecognised fields or directions are skipped; a bare
// field sorts ascending.
func ParseSortOrder(raw string) []SortOption {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	options := make([]SortOption, 0, len(parts))
	seen := make(map[SortField]bool)

	for _, part := range parts {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}

		field, dir := splitSortToken(token)
		sortField := mapSortField(field)
		if sortField == "" || seen[sortField] {
			continue
		}
		direction := mapSortDirection(dir)
		if direction == "" {
			continue
		}
		seen[sortField] = true
		options = append(options, SortOption{Field: sortField, Direction: direction})
	}
	return options
}

// EncodeSortOrder is the inverse of ParseSortOrder.
func EncodeSortOrder(options []SortOption) string {
	tokens := make([]string, 0, len(options))
	for _, opt := range options {
		if mapSortField(string(opt.Field)) == "" || mapSortDirection(string(opt.Direction)) == "" {
			continue
		}
		tokens = append(tokens, string(opt.Field)+"-"+string(opt.Direction))
	}
	return strings.Join(tokens, ",")
}

// SortTasks orders tasks in place. Ties that survive every option fall back
// to ID so output is deterministic.
func SortTasks(tasks []*Task, options []SortOption) {
	if len(options) == 0 {
		options = DefaultSortOptions()
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		for _, opt := range options {
			// Tasks without a deadline sort last regardless of direction.
			if opt.Field == SortFieldDeadline && (a.Deadline == nil) != (b.Deadline == nil) {
				return b.Deadline == nil
			}
			c := compareField(a, b, opt.Field)
			if c == 0 {
				continue
			}
			if opt.Direction == SortDesc {
				return c > 0
			}
			return c < 0
		}
		return a.ID < b.ID
	})
}

func compareField(a, b *Task, field SortField) int {
	switch field {
	case SortFieldRank:
		return a.Rank - b.Rank
	case SortFieldDeadline:
		if a.Deadline == nil || b.Deadline == nil {
			return 0
		}
		return a.Deadline.Compare(*b.Deadline)
	case SortFieldCreated:
		return a.CreatedAt.Compare(b.CreatedAt)
	case SortFieldUpdated:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case SortFieldTitle:
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	}
	return 0
}

func splitSortToken(token string) (string, string) {
	if idx := strings.IndexAny(token, ":-"); idx >= 0 {
		return strings.ToLower(strings.TrimSpace(token[:idx])), strings.ToLower(strings.TrimSpace(token[idx+1:]))
	}
	return strings.ToLower(token), "asc"
}

func mapSortField(raw string) SortField {
	switch strings.ToLower(raw) {
	case "rank", "priority":
		return SortFieldRank
	case "deadline", "due":
		return SortFieldDeadline
	case "created", "created_at":
		return SortFieldCreated
	case "updated", "updated_at":
		return SortFieldUpdated
	case "title":
		return SortFieldTitle
	default:
		return ""
	}
}

func mapSortDirection(raw string) SortDirection {
	switch strings.ToLower(raw) {
	case "asc", "ascending":
		return SortAsc
	case "desc", "descending":
		return SortDesc
	default:
		return ""
	}
}

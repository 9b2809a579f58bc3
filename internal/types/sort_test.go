package types

import (
	"reflect"
	"testing"
	"time"
)

func TestParseSortOrder(t *testing.T) {
	tests := []struct {
		raw  string
		want []SortOption
	}{
		{"", nil},
		{"rank", []SortOption{{SortFieldRank, SortAsc}}},
		{"deadline-desc, title:asc", []SortOption{{SortFieldDeadline, SortDesc}, {SortFieldTitle, SortAsc}}},
		{"updated_at-descending", []SortOption{{SortFieldUpdated, SortDesc}}},
		{"bogus,rank-sideways,created", []SortOption{{SortFieldCreated, SortAsc}}},
		{"rank,rank-desc", []SortOption{{SortFieldRank, SortAsc}}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseSortOrder(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseSortOrder(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestEncodeSortOrderRoundTrip(t *testing.T) {
	opts := []SortOption{{SortFieldDeadline, SortAsc}, {SortFieldUpdated, SortDesc}}
	enc := EncodeSortOrder(opts)
	if enc != "deadline-asc,updated-desc" {
		t.Fatalf("EncodeSortOrder = %q", enc)
	}
	if got := ParseSortOrder(enc); !reflect.DeepEqual(got, opts) {
		t.Errorf("round trip = %v", got)
	}
}

func TestSortTasksDeadlineNilsLast(t *testing.T) {
	d1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 1, 0)
	tasks := []*Task{
		{ID: "none"},
		{ID: "early", Deadline: &d1},
		{ID: "late", Deadline: &d2},
	}

	SortTasks(tasks, []SortOption{{SortFieldDeadline, SortDesc}})
	if ids(tasks) != "late,early,none" {
		t.Errorf("desc order = %s", ids(tasks))
	}
	SortTasks(tasks, []SortOption{{SortFieldDeadline, SortAsc}})
	if ids(tasks) != "early,late,none" {
		t.Errorf("asc order = %s", ids(tasks))
	}
}

func TestSortTasksDefault(t *testing.T) {
	base := time.Now()
	tasks := []*Task{
		{ID: "b", Rank: 1, UpdatedAt: base},
		{ID: "c", Rank: 0, UpdatedAt: base},
		{ID: "a", Rank: 0, UpdatedAt: base.Add(time.Minute)},
	}
	SortTasks(tasks, nil)
	if ids(tasks) != "a,c,b" {
		t.Errorf("default order = %s", ids(tasks))
	}
}

func ids(tasks []*Task) string {
	s := ""
	for i, t := range tasks {
		if i > 0 {
			s += ","
		}
		s += t.ID
	}
	return s
}

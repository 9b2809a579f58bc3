package ui

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prioritylab/prio/internal/types"
)

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name         string
		env          map[string]string
		wantColor    bool
		dependsOnTTY bool
	}{
		{name: "NO_COLOR disables color", env: map[string]string{"NO_COLOR": "1"}},
		{name: "NO_COLOR empty value still disables", env: map[string]string{"NO_COLOR": ""}},
		{name: "CLICOLOR=0 disables color", env: map[string]string{"CLICOLOR": "0"}},
		{name: "CLICOLOR_FORCE enables color in non-TTY", env: map[string]string{"CLICOLOR_FORCE": "1"}, wantColor: true},
		{name: "NO_COLOR beats CLICOLOR_FORCE", env: map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}},
		{name: "no settings follows TTY", dependsOnTTY: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"NO_COLOR", "CLICOLOR", "CLICOLOR_FORCE"} {
				t.Setenv(k, "")
			}
			unset(t, "NO_COLOR")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got := ShouldUseColor()
			if tt.dependsOnTTY {
				if got != IsTerminal() {
					t.Errorf("ShouldUseColor() = %v, IsTerminal() = %v", got, IsTerminal())
				}
				return
			}
			if got != tt.wantColor {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.wantColor)
			}
		})
	}
}

func TestSyncBadge(t *testing.T) {
	DisableColor()
	tests := map[types.SyncStatus]string{
		types.SyncSynced:   IconPass,
		types.SyncPending:  "•",
		types.SyncSyncing:  IconSync,
		types.SyncConflict: IconWarn,
		types.SyncError:    IconFail,
		"":                 IconSkip,
	}
	for status, want := range tests {
		if got := SyncBadge(status); got != want {
			t.Errorf("SyncBadge(%q) = %q, want %q", status, got, want)
		}
	}
	if got := SyncLabel(types.SyncError); got != IconFail+" error" {
		t.Errorf("SyncLabel = %q", got)
	}
}

func TestRenderDeadline(t *testing.T) {
	DisableColor()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)

	if got := RenderDeadline(nil, now); got != "" {
		t.Errorf("nil deadline = %q", got)
	}
	past := now.Add(-time.Hour)
	if got := RenderDeadline(&past, now); !strings.HasPrefix(got, "overdue ") {
		t.Errorf("past deadline = %q", got)
	}
	soon := now.Add(3 * time.Hour)
	if got := RenderDeadline(&soon, now); got != "due Tue Mar 10 15:00" {
		t.Errorf("soon deadline = %q", got)
	}
	nextYear := now.AddDate(1, 0, 0)
	if got := RenderDeadline(&nextYear, now); !strings.Contains(got, "2027") {
		t.Errorf("next-year deadline should show the year: %q", got)
	}
}

func TestRenderRank(t *testing.T) {
	DisableColor()
	if got := RenderRank(0); got != " 1." {
		t.Errorf("RenderRank(0) = %q", got)
	}
	if got := RenderRank(11); got != "12." {
		t.Errorf("RenderRank(11) = %q", got)
	}
}

func TestRenderMarkdownPlainWithoutColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	in := "# Heading\n\n*emphasis*"
	if got := RenderMarkdown(in); got != in {
		t.Errorf("RenderMarkdown without color should pass through, got %q", got)
	}
}

func TestToPagerWritesToOut(t *testing.T) {
	var buf bytes.Buffer
	if err := ToPager("line one\nline two\n", PagerOptions{Out: &buf}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "line one\nline two\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestPagerArgvOffTerminal(t *testing.T) {
	// go test's stdout is not a terminal, and the switches short-circuit first.
	long := strings.Repeat("row\n", 500)
	if argv := pagerArgv(long, true); argv != nil {
		t.Errorf("--no-pager should write directly, got %v", argv)
	}
	t.Setenv("PRIO_NO_PAGER", "1")
	if argv := pagerArgv(long, false); argv != nil {
		t.Errorf("PRIO_NO_PAGER should write directly, got %v", argv)
	}
}

func TestLineCount(t *testing.T) {
	tests := map[string]int{"": 0, "a": 1, "a\n": 1, "a\nb": 2, "a\nb\n": 2}
	for in, want := range tests {
		if got := lineCount(in); got != want {
			t.Errorf("lineCount(%q) = %d, want %d", in, got, want)
		}
	}
}

func unset(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatal(err)
	}
}

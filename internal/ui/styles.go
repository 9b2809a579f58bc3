// Package ui provides terminal styling for prio CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/prioritylab/prio/internal/types"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	DoneStyle   = lipgloss.NewStyle().Foreground(ColorMuted).Strikethrough(true)

	// CategoryStyle for section headers - bold with accent color
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Status icons
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
	IconInfo = "ℹ"
	IconSync = "↻"
)

// Tree characters for hierarchical display
const (
	TreeChild  = "├─ "
	TreeLast   = "└─ "
	TreeIndent = "   "
	TreePipe   = "│  "
)

// SeparatorLight is the muted horizontal rule.
const SeparatorLight = "──────────────────────────────────────────"

// RenderPass renders text with pass (green) styling
func RenderPass(s string) string { return PassStyle.Render(s) }

// RenderWarn renders text with warning (yellow) styling
func RenderWarn(s string) string { return WarnStyle.Render(s) }

// RenderFail renders text with fail (red) styling
func RenderFail(s string) string { return FailStyle.Render(s) }

// RenderMuted renders text with muted (gray) styling
func RenderMuted(s string) string { return MutedStyle.Render(s) }

// RenderAccent renders text with accent (blue) styling
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderCategory renders a category header in uppercase with accent color
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

// SyncBadge is a one-character marker for a task's replication state.
func SyncBadge(s types.SyncStatus) string {
	switch s {
	case types.SyncSynced:
		return PassStyle.Render(IconPass)
	case types.SyncPending:
		return WarnStyle.Render("•")
	case types.SyncSyncing:
		return AccentStyle.Render(IconSync)
	case types.SyncConflict:
		return WarnStyle.Render(IconWarn)
	case types.SyncError:
		return FailStyle.Render(IconFail)
	default:
		return MutedStyle.Render(IconSkip)
	}
}

// SyncLabel is the badge followed by the status name.
func SyncLabel(s types.SyncStatus) string {
	return SyncBadge(s) + " " + string(s)
}

// RenderTitle styles a title, striking through completed tasks.
func RenderTitle(t *types.Task) string {
	if t.Completed {
		return DoneStyle.Render(t.Title)
	}
	return t.Title
}

// RenderDeadline formats a deadline relative to now: overdue in red, due
// within a day in yellow.
func RenderDeadline(deadline *time.Time, now time.Time) string {
	if deadline == nil {
		return ""
	}
	d := deadline.Local()
	label := d.Format("Mon Jan 2 15:04")
	if d.Year() != now.Year() {
		label = d.Format("Jan 2 2006 15:04")
	}
	switch left := d.Sub(now); {
	case left < 0:
		return FailStyle.Render("overdue " + label)
	case left < 24*time.Hour:
		return WarnStyle.Render("due " + label)
	default:
		return MutedStyle.Render("due " + label)
	}
}

// RenderRank formats a zero-based rank as a one-based position.
func RenderRank(rank int) string {
	return AccentStyle.Render(fmt.Sprintf("%2d.", rank+1))
}

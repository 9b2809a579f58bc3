package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

func init() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows NO_COLOR, CLICOLOR and CLICOLOR_FORCE, falling
// back to whether stdout is a terminal.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" && os.Getenv("CLICOLOR_FORCE") != "0" {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	return IsTerminal()
}

// DisableColor turns styling off for the rest of the process, e.g. for
// --json output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// TerminalWidth returns the stdout width, or fallback when unknown.
func TerminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}

// HasDarkBackground reports the terminal background, assuming dark when it
// cannot be queried.
func HasDarkBackground() bool {
	if !IsTerminal() {
		return true
	}
	return termenv.HasDarkBackground()
}

package ui

import (
	"charm.land/glamour/v2"
)

// maxReadableWidth caps word wrap for long descriptions.
const maxReadableWidth = 100

// RenderMarkdown renders a task description with glamour. It returns the
// input unchanged when colors are off or rendering fails.
func RenderMarkdown(markdown string) string {
	if !ShouldUseColor() {
		return markdown
	}
	width := min(TerminalWidth(80), maxReadableWidth)
	style := "dark"
	if !HasDarkBackground() {
		style = "light"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}

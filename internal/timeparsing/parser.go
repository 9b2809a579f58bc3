// Package timeparsing turns user-typed deadline expressions into times.
//
// Layers are tried in order and the first match wins:
//  1. Compact duration (+6h, -1d, +2w)
//  2. Absolute timestamp (RFC3339, date-only, date with time)
//  3. Natural language (tomorrow, next monday at 2pm, in 3 days)
package timeparsing

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// compactDurationRe matches compact duration patterns: [+-]?(\d+)([hdwmy])
// Examples: +6h, -1d, +2w, 3m, 1y
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ErrUnrecognized is returned when no layer understands the input.
var ErrUnrecognized = errors.New("unrecognized time expression")

// ParseCompactDuration parses compact duration syntax and returns the resulting time.
//
// Format: [+-]?(\d+)([hdwmy])
//
// Units:
//   - h = hours
//   - d = days
//   - w = weeks
//   - m = months
//   - y = years
//
// A missing sign means positive.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}
	return applyDuration(now, amount, matches[3]), nil
}

// applyDuration applies the given amount and unit to the base time.
func applyDuration(base time.Time, amount int, unit string) time.Time {
	switch unit {
	case "h":
		return base.Add(time.Duration(amount) * time.Hour)
	case "d":
		return base.AddDate(0, 0, amount)
	case "w":
		return base.AddDate(0, 0, amount*7)
	case "m":
		return base.AddDate(0, amount, 0)
	case "y":
		return base.AddDate(amount, 0, 0)
	default:
		return base
	}
}

// IsCompactDuration returns true if the string matches compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseAbsolute parses a timestamp or date. Inputs without a zone are read
// in now's location; a bare date means midnight.
func ParseAbsolute(s string, now time.Time) (time.Time, error) {
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an absolute time: %q", s)
}

var nlp = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseNaturalLanguage parses English expressions such as "tomorrow",
// "next friday at 5pm", "in 3 days" or "2 weeks ago".
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrUnrecognized)
	}
	r, err := nlp.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
	}
	return r.Time, nil
}

// ParseRelativeTime runs every layer in order and returns the first match.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrUnrecognized)
	}
	if t, err := ParseCompactDuration(s, now); err == nil {
		return t, nil
	}
	if t, err := ParseAbsolute(s, now); err == nil {
		return t, nil
	}
	if t, err := ParseNaturalLanguage(s, now); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q (try +2d, 2025-03-01 or \"next friday\")", ErrUnrecognized, s)
}

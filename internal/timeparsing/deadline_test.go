package timeparsing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday, 10:00.
var ref = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func TestParseCompactDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"+6h", ref.Add(6 * time.Hour)},
		{"6h", ref.Add(6 * time.Hour)},
		{"+2d", ref.AddDate(0, 0, 2)},
		{"-1d", ref.AddDate(0, 0, -1)},
		{"+2w", ref.AddDate(0, 0, 14)},
		{"1m", ref.AddDate(0, 1, 0)},
		{"+1y", ref.AddDate(1, 0, 0)},
		{"+36h", ref.Add(36 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCompactDuration(tt.in, ref)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}

	for _, in := range []string{"", "tomorrow", "2025-01-20", "6h+", "++1d", "1x"} {
		assert.False(t, IsCompactDuration(in), in)
		_, err := ParseCompactDuration(in, ref)
		assert.Error(t, err, in)
	}
}

func TestParseCompactDurationKeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	got, err := ParseCompactDuration("+1d", ref.In(loc))
	require.NoError(t, err)
	assert.Equal(t, loc, got.Location())

	leap := time.Date(2024, 2, 28, 12, 0, 0, 0, time.UTC)
	got, err = ParseCompactDuration("+1d", leap)
	require.NoError(t, err)
	assert.Equal(t, 29, got.Day())
}

func TestParseNaturalLanguageDeadlines(t *testing.T) {
	tests := []struct {
		in    string
		month time.Month
		day   int
	}{
		{"tomorrow", time.January, 16},
		{"next monday", time.January, 20},
		{"next friday", time.January, 17},
		{"in 3 days", time.January, 18},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNaturalLanguage(tt.in, ref)
			require.NoError(t, err)
			assert.Equal(t, tt.month, got.Month())
			assert.Equal(t, tt.day, got.Day())
		})
	}
}

func TestParseRelativeTimeLayerOrder(t *testing.T) {
	// Compact syntax wins and keeps the clock time.
	got, err := ParseRelativeTime(" +1d ", ref)
	require.NoError(t, err)
	assert.True(t, got.Equal(ref.AddDate(0, 0, 1)))

	// A bare date is midnight, never an NLP guess.
	got, err = ParseRelativeTime("2025-01-20", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseRelativeTime("tomorrow", ref)
	require.NoError(t, err)
	assert.Equal(t, 16, got.Day())
}

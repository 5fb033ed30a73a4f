package timerange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("14:05")
	require.NoError(t, err)
	assert.Equal(t, 14, c.Hour())
	assert.Equal(t, 5, c.Minute())
	assert.Equal(t, "14:05", c.String())

	for _, raw := range []string{"", "9:00", "24:00", "12:60", "ab:cd", "12-00", "12:000"} {
		_, err := ParseClock(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseIntervalRejectsInvertedRange(t *testing.T) {
	_, err := ParseInterval("16:00", "14:00")
	assert.Error(t, err)
	_, err = ParseInterval("14:00", "14:00")
	assert.Error(t, err)

	iv, err := ParseInterval("14:00", "16:00")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, iv.Duration())
}

func TestIntervalOverlaps(t *testing.T) {
	base, _ := ParseInterval("14:00", "16:00")
	overlapping, _ := ParseInterval("15:00", "17:00")
	adjacent, _ := ParseInterval("16:00", "18:00")
	inner, _ := ParseInterval("14:30", "15:30")

	assert.True(t, base.Overlaps(overlapping))
	assert.True(t, overlapping.Overlaps(base))
	assert.False(t, base.Overlaps(adjacent))
	assert.True(t, base.Covers(inner))
	assert.False(t, base.Covers(overlapping))
}

func TestWeekStartNormalizesToMonday(t *testing.T) {
	sunday := time.Date(2026, 10, 18, 22, 30, 0, 0, time.UTC)
	monday := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, WeekStart(sunday, time.UTC))
	assert.Equal(t, monday, WeekStart(monday.Add(3*time.Hour), time.UTC))

	loc := time.FixedZone("UTC+7", 7*3600)
	// Sunday 20:00 UTC is already Monday in UTC+7.
	local := WeekStart(time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, loc), local)
}

func TestDateInWeek(t *testing.T) {
	monday := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, DateInWeek(monday, int(time.Monday)))
	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), DateInWeek(monday, int(time.Wednesday)))
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), DateInWeek(monday, int(time.Sunday)))
}

func TestDaysBetweenIgnoresClock(t *testing.T) {
	a := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 8, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 7, DaysBetween(a, b, time.UTC))
	assert.Equal(t, -7, DaysBetween(b, a, time.UTC))
}

func TestClockOn(t *testing.T) {
	c, _ := ParseClock("09:30")
	day := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 12, 9, 30, 0, 0, time.UTC), c.On(day, time.UTC))
	assert.Equal(t, c, ClockOf(c.On(day, time.UTC)))
}

package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarBoundaries(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	cal := Calendar{Location: loc, WeekStart: time.Sunday}

	// Wednesday 2026-10-14 10:30 local
	now := time.Date(2026, 10, 14, 10, 30, 0, 0, loc)

	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, loc), cal.StartOfDay(now))
	assert.Equal(t, time.Date(2026, 10, 11, 0, 0, 0, 0, loc), cal.StartOfWeek(now))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, loc), cal.StartOfYear(now))
	assert.Equal(t, "14/10/2026", cal.FormatDate(now))
}

func TestStartOfWeekOnBoundaryDay(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	sunday := time.Date(2026, 10, 11, 0, 0, 0, 0, loc)

	cal := Calendar{Location: loc, WeekStart: time.Sunday}
	assert.Equal(t, sunday, cal.StartOfWeek(sunday))
	assert.Equal(t, sunday, cal.StartOfWeek(sunday.Add(23*time.Hour)))

	monday := Calendar{Location: loc, WeekStart: time.Monday}
	assert.Equal(t, time.Date(2026, 10, 5, 0, 0, 0, 0, loc), monday.StartOfWeek(sunday))
}

func TestStartOfDayConvertsLocation(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	cal := Calendar{Location: loc}

	// 01:00 UTC is still the previous day in ART.
	utc := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, loc), cal.StartOfDay(utc))
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Monday")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)

	d, err = ParseWeekday("sun")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, d)

	d, err = ParseWeekday("")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, d)

	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}

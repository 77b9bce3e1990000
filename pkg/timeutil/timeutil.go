// Package timeutil provides calendar boundaries (day, week, year) in a
// configured school timezone. All report windows are computed through it so
// that "today" means the school's today, not the server's.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// Calendar computes window boundaries in a fixed location with a fixed
// first day of the week.
type Calendar struct {
	Location  *time.Location
	WeekStart time.Weekday
}

// NewCalendar loads the named timezone. An empty name means time.Local.
func NewCalendar(tz string, weekStart time.Weekday) (Calendar, error) {
	loc := time.Local
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return Calendar{}, fmt.Errorf("failed to load timezone %q: %w", tz, err)
		}
	}
	return Calendar{Location: loc, WeekStart: weekStart}, nil
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// In converts t to the calendar location.
func (c Calendar) In(t time.Time) time.Time {
	return t.In(c.loc())
}

// StartOfDay returns 00:00:00 of t's day.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	l := c.In(t)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.loc())
}

// StartOfWeek returns 00:00:00 of the most recent WeekStart day on or before t.
func (c Calendar) StartOfWeek(t time.Time) time.Time {
	l := c.In(t)
	back := (int(l.Weekday()) - int(c.WeekStart) + 7) % 7
	return c.StartOfDay(time.Date(l.Year(), l.Month(), l.Day()-back, 12, 0, 0, 0, c.loc()))
}

// StartOfYear returns 00:00:00 on January 1st of t's year.
func (c Calendar) StartOfYear(t time.Time) time.Time {
	return time.Date(c.In(t).Year(), time.January, 1, 0, 0, 0, 0, c.loc())
}

// FormatDate renders t as DD/MM/YYYY.
func (c Calendar) FormatDate(t time.Time) string {
	return c.In(t).Format("02/01/2006")
}

// ParseWeekday accepts english day names ("sunday", "Mon") and returns the weekday.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return time.Sunday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

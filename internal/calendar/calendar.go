// Package calendar computes the rolling week window shown to a group and
// formats dates as storage keys and display labels.
//
// All dates are local calendar days. A date-key is "YYYY-MM-DD" built from
// the date's own year/month/day fields and is never shifted to UTC.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/now"
)

// WindowDays is the width of a week window: Monday through the next Monday.
// The trailing Monday overlaps the following window; stored data is keyed
// by date so the overlap is harmless.
const WindowDays = 8

const keyLayout = "2006-01-02"

// ErrInvalidDateKey is returned when a string is not a valid YYYY-MM-DD date.
var ErrInvalidDateKey = errors.New("invalid date key")

// WeekDates returns the window for the week offset whole weeks from the current one.
func WeekDates(offset int) []time.Time {
	return WeekDatesAt(time.Now(), offset)
}

// WeekDatesAt returns the 8 local-midnight dates starting at the most recent
// Monday on or before t, shifted by offset weeks.
func WeekDatesAt(t time.Time, offset int) []time.Time {
	monday := now.With(t).Monday().AddDate(0, 0, offset*7)
	dates := make([]time.Time, WindowDays)
	for i := range dates {
		// Building from calendar fields keeps every entry at local midnight across DST changes.
		dates[i] = time.Date(monday.Year(), monday.Month(), monday.Day()+i, 0, 0, 0, 0, t.Location())
	}
	return dates
}

// WeekRange returns the display label for the window at offset.
func WeekRange(offset int) string {
	return WeekRangeAt(time.Now(), offset)
}

// WeekRangeAt formats the first and last day of the window as "Jun 10-17",
// or "Jun 24 - Jul 1" when the window crosses a month boundary.
func WeekRangeAt(t time.Time, offset int) string {
	return FormatRange(WeekDatesAt(t, offset))
}

// FormatRange formats the first and last entries of dates. It returns ""
// for an empty slice.
func FormatRange(dates []time.Time) string {
	if len(dates) == 0 {
		return ""
	}
	first, last := dates[0], dates[len(dates)-1]
	if first.Month() == last.Month() {
		return fmt.Sprintf("%s %d-%d", first.Format("Jan"), first.Day(), last.Day())
	}
	return fmt.Sprintf("%s %d - %s %d", first.Format("Jan"), first.Day(), last.Format("Jan"), last.Day())
}

// DateKey formats t as YYYY-MM-DD using t's own location.
func DateKey(t time.Time) string {
	return t.Format(keyLayout)
}

// ParseDateKey parses a date-key as local midnight.
func ParseDateKey(s string) (time.Time, error) {
	return ParseDateKeyIn(s, time.Local)
}

// ParseDateKeyIn parses a date-key as midnight in loc.
func ParseDateKeyIn(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(keyLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateKey, s)
	}
	return t, nil
}

// ValidDateKey reports whether s is a well-formed date-key.
func ValidDateKey(s string) bool {
	_, err := time.Parse(keyLayout, s)
	return err == nil
}

// DisplayDate formats t as "Mon, Jun 10".
func DisplayDate(t time.Time) string {
	return t.Format("Mon, Jan 2")
}

// IsToday reports whether t falls on the current local calendar day.
func IsToday(t time.Time) bool {
	return IsTodayAt(t, time.Now())
}

// IsTodayAt reports whether t and ref share year, month and day.
// Both are compared in their own locations.
func IsTodayAt(t, ref time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

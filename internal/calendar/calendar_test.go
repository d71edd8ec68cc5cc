package calendar

import (
	"errors"
	"testing"
	"time"
)

func day(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, 15, 30, 0, 0, loc)
}

func TestWeekDatesAt(t *testing.T) {
	wednesday := day(2024, time.June, 12, time.Local)

	dates := WeekDatesAt(wednesday, 0)
	if len(dates) != WindowDays {
		t.Fatalf("expected %d dates, got %d", WindowDays, len(dates))
	}
	if got := DateKey(dates[0]); got != "2024-06-10" {
		t.Errorf("first date = %s, want 2024-06-10", got)
	}
	if got := DateKey(dates[7]); got != "2024-06-17" {
		t.Errorf("last date = %s, want 2024-06-17", got)
	}
	if dates[0].Hour() != 0 || dates[0].Minute() != 0 {
		t.Errorf("expected local midnight, got %v", dates[0])
	}
}

func TestWeekDatesAt_Sunday(t *testing.T) {
	sunday := day(2024, time.June, 16, time.Local)
	if got := DateKey(WeekDatesAt(sunday, 0)[0]); got != "2024-06-10" {
		t.Errorf("Sunday should anchor on the Monday 6 days prior, got %s", got)
	}

	monday := day(2024, time.June, 17, time.Local)
	if got := DateKey(WeekDatesAt(monday, 0)[0]); got != "2024-06-17" {
		t.Errorf("Monday should anchor on itself, got %s", got)
	}
}

func TestWeekDatesAt_Properties(t *testing.T) {
	zones := []*time.Location{
		time.UTC,
		time.FixedZone("UTC-11", -11*3600),
		time.FixedZone("UTC+14", 14*3600),
	}
	start := day(2024, time.March, 1, time.UTC)

	for _, loc := range zones {
		for i := 0; i < 14; i++ {
			ref := start.In(loc).AddDate(0, 0, i)
			for offset := -3; offset <= 3; offset++ {
				dates := WeekDatesAt(ref, offset)
				if len(dates) != WindowDays {
					t.Fatalf("%s offset %d: got %d dates", loc, offset, len(dates))
				}
				if dates[0].Weekday() != time.Monday {
					t.Errorf("%s offset %d: first day is %s", loc, offset, dates[0].Weekday())
				}
				for j := 1; j < len(dates); j++ {
					want := DateKey(dates[j-1].AddDate(0, 0, 1))
					if got := DateKey(dates[j]); got != want {
						t.Errorf("%s offset %d: dates[%d] = %s, want %s", loc, offset, j, got, want)
					}
				}
			}
		}
	}
}

func TestWeekDatesAt_Offset(t *testing.T) {
	wednesday := day(2024, time.June, 12, time.Local)

	if got := DateKey(WeekDatesAt(wednesday, 1)[0]); got != "2024-06-17" {
		t.Errorf("offset 1: got %s", got)
	}
	if got := DateKey(WeekDatesAt(wednesday, -2)[0]); got != "2024-05-27" {
		t.Errorf("offset -2: got %s", got)
	}
}

func TestWeekRangeAt(t *testing.T) {
	tests := []struct {
		name string
		ref  time.Time
		want string
	}{
		{"same month", day(2024, time.June, 12, time.UTC), "Jun 10-17"},
		{"crosses month", day(2024, time.June, 26, time.UTC), "Jun 24 - Jul 1"},
		{"crosses year", day(2024, time.December, 31, time.UTC), "Dec 30 - Jan 6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeekRangeAt(tt.ref, 0); got != tt.want {
				t.Errorf("WeekRangeAt = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDateKeyRoundTrip(t *testing.T) {
	zones := []*time.Location{
		time.UTC,
		time.FixedZone("UTC-11", -11*3600),
		time.FixedZone("UTC+14", 14*3600),
	}

	for _, loc := range zones {
		// 23:30 local is already the next day in UTC for negative offsets.
		ref := time.Date(2024, time.January, 5, 23, 30, 0, 0, loc)
		key := DateKey(ref)
		if key != "2024-01-05" {
			t.Errorf("%s: DateKey = %s, want local calendar day 2024-01-05", loc, key)
		}

		parsed, err := ParseDateKeyIn(key, loc)
		if err != nil {
			t.Fatalf("%s: parse: %v", loc, err)
		}
		if got := DateKey(parsed); got != key {
			t.Errorf("%s: round trip = %s, want %s", loc, got, key)
		}
	}
}

func TestParseDateKey_Invalid(t *testing.T) {
	for _, s := range []string{"", "2024-6-1", "2024-13-01", "2024-02-30", "today"} {
		if _, err := ParseDateKey(s); !errors.Is(err, ErrInvalidDateKey) {
			t.Errorf("ParseDateKey(%q): expected ErrInvalidDateKey, got %v", s, err)
		}
		if ValidDateKey(s) {
			t.Errorf("ValidDateKey(%q) = true", s)
		}
	}
}

func TestIsTodayAt(t *testing.T) {
	ref := day(2024, time.June, 12, time.UTC)

	if !IsTodayAt(time.Date(2024, time.June, 12, 0, 0, 0, 0, time.UTC), ref) {
		t.Error("same day should be today")
	}
	if IsTodayAt(time.Date(2024, time.June, 13, 0, 0, 0, 0, time.UTC), ref) {
		t.Error("next day should not be today")
	}
	if IsTodayAt(time.Date(2023, time.June, 12, 0, 0, 0, 0, time.UTC), ref) {
		t.Error("same day last year should not be today")
	}
}

func TestDisplayDate(t *testing.T) {
	if got := DisplayDate(day(2024, time.October, 21, time.UTC)); got != "Mon, Oct 21" {
		t.Errorf("DisplayDate = %q", got)
	}
}

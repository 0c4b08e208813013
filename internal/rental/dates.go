package rental

import (
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"
)

// DefaultTimezone is the business timezone used for calendar-day math.
const DefaultTimezone = "America/Sao_Paulo"

const displayDateLayout = "02/01/2006"

var businessLocation atomic.Pointer[time.Location]

func init() {
	businessLocation.Store(loadLocation(DefaultTimezone))
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, -3*60*60)
	}
	return loc
}

// SetLocation changes the business timezone. An empty name restores the default.
func SetLocation(name string) {
	if strings.TrimSpace(name) == "" {
		name = DefaultTimezone
	}
	businessLocation.Store(loadLocation(name))
}

// Location returns the business timezone.
func Location() *time.Location {
	return businessLocation.Load()
}

// Date builds a calendar date at midnight in the business timezone.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Location())
}

// DateOnly truncates t to midnight of its calendar day in the business timezone.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.In(Location()).Date()
	return Date(y, m, d)
}

// Today is the calendar day of now.
func Today(now time.Time) time.Time {
	return DateOnly(now)
}

// AddDays moves a date by whole calendar days.
func AddDays(t time.Time, days int) time.Time {
	return DateOnly(t).AddDate(0, 0, days)
}

// DaysBetween returns the number of calendar days from a to b (negative when b
// is earlier).
func DaysBetween(a, b time.Time) int {
	ay, am, ad := DateOnly(a).Date()
	by, bm, bd := DateOnly(b).Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// ComputeEndDate returns start + agreedDays - 1 (a one-day rental ends the day it
// starts). The result is unset when start is missing or the day count is not
// positive.
func ComputeEndDate(start time.Time, agreedDays int) (time.Time, bool) {
	if start.IsZero() || agreedDays < 1 {
		return time.Time{}, false
	}
	return AddDays(start, agreedDays-1), true
}

// FormatDate renders t as dd/mm/yyyy, or fallback when t is nil or zero.
func FormatDate(t *time.Time, fallback string) string {
	if t == nil || t.IsZero() {
		return fallback
	}
	return t.In(Location()).Format(displayDateLayout)
}

var parseLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	displayDateLayout,
}

// ParseDate accepts ISO dates, RFC3339 timestamps and dd/mm/yyyy. The calendar
// day is taken as written, so "2024-01-10T00:00:00Z" is January 10th.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, raw, Location()); err == nil {
			return Date(t.Date()), true
		}
	}
	return time.Time{}, false
}


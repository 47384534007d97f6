// Package timeutil provides calendar-day helpers for attendance tracking.
// Attendance is recorded per civil date, so most helpers here strip the
// time-of-day and work on dates normalized to midnight UTC.
package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Clock returns the current time. Components that depend on "now" take a
// Clock so tests can pin it.
type Clock func() time.Time

// SystemClock is the real wall clock.
func SystemClock() time.Time {
	return time.Now()
}

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// InLocation returns a system clock reporting wall time in loc, so civil
// dates derived from it follow that timezone.
func InLocation(loc *time.Location) Clock {
	if loc == nil {
		return SystemClock
	}
	return func() time.Time { return time.Now().In(loc) }
}

// Now returns the clock's time, falling back to the system clock when c is nil.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// Date creates a calendar date (midnight UTC).
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOnly maps t to midnight UTC of its own civil date, so 2024-01-02 23:30
// in UTC+5 and 2024-01-02 00:00 UTC compare equal.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays moves a date by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return DateOnly(t).AddDate(0, 0, n)
}

// StartOfMonth returns the first day of the given month.
func StartOfMonth(year int, month time.Month) time.Time {
	return Date(year, month, 1)
}

// EndOfMonth returns the last day of the given month.
func EndOfMonth(year int, month time.Month) time.Time {
	return StartOfMonth(year, month).AddDate(0, 1, -1)
}

// IsWeekend checks if the date is a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	weekday := t.Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}

// IsWorkday checks if the date is Monday to Friday.
func IsWorkday(t time.Time) bool {
	return !IsWeekend(t)
}

// NextWorkday returns the next workday after t (skipping weekends).
func NextWorkday(t time.Time) time.Time {
	next := AddDays(t, 1)
	for IsWeekend(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// IsSameDay checks if two instants fall on the same civil date.
func IsSameDay(t1, t2 time.Time) bool {
	return DateOnly(t1).Equal(DateOnly(t2))
}

// Before reports whether a's date is strictly before b's date.
func Before(a, b time.Time) bool {
	return DateOnly(a).Before(DateOnly(b))
}

// After reports whether a's date is strictly after b's date.
func After(a, b time.Time) bool {
	return DateOnly(a).After(DateOnly(b))
}

// DaysBetween returns the signed number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// MinDate returns the earlier of two dates.
func MinDate(a, b time.Time) time.Time {
	if Before(b, a) {
		return b
	}
	return a
}

// FormatDate is the ISO date layout used for keys, exports and messages.
const FormatDate = "2006-01-02"

// FormatDateStr formats t as YYYY-MM-DD.
func FormatDateStr(t time.Time) string {
	return t.Format(FormatDate)
}

var dateLayouts = []string{
	FormatDate,
	"2006/01/02",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ErrEmptyDate is returned by ParseDate for blank input.
var ErrEmptyDate = errors.New("empty date")

// ParseDate parses a date in one of the accepted layouts and returns it as a
// calendar date.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptyDate
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return DateOnly(parsed), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %s", value)
}

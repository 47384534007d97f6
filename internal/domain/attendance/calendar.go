package attendance

import (
	"time"

	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// CalculateWorkingDays counts Monday-Friday dates in [start, end]. A reversed
// range yields 0.
func CalculateWorkingDays(start, end time.Time) int {
	count := 0
	for d, last := timeutil.DateOnly(start), timeutil.DateOnly(end); !d.After(last); d = d.AddDate(0, 0, 1) {
		if timeutil.IsWorkday(d) {
			count++
		}
	}
	return count
}

// WorkingDaysBetween returns the Monday-Friday dates in [start, end] in
// ascending order. This is the expected attendance calendar.
func WorkingDaysBetween(start, end time.Time) []time.Time {
	days := make([]time.Time, 0)
	for d, last := timeutil.DateOnly(start), timeutil.DateOnly(end); !d.After(last); d = d.AddDate(0, 0, 1) {
		if timeutil.IsWorkday(d) {
			days = append(days, d)
		}
	}
	return days
}

// periodEnd is the soft upper bound of a cohort: its end date, or today for
// cohorts without one.
func periodEnd(end *time.Time, now time.Time) time.Time {
	if end != nil {
		return timeutil.DateOnly(*end)
	}
	return timeutil.DateOnly(now)
}

// AttendanceWindowEnd is the last date attendance can exist for: the cohort
// end date or today, whichever comes first.
func AttendanceWindowEnd(end *time.Time, now time.Time) time.Time {
	return timeutil.MinDate(periodEnd(end, now), timeutil.DateOnly(now))
}

// CohortWorkingDays counts working days from the cohort start up to its end
// date or today, whichever comes first.
func CohortWorkingDays(start time.Time, end *time.Time, now time.Time) int {
	return CalculateWorkingDays(start, AttendanceWindowEnd(end, now))
}

// IsValidAttendanceDate reports whether attendance may be recorded for date:
// a weekday inside the cohort period and not after today.
func IsValidAttendanceDate(date, start time.Time, end *time.Time, now time.Time) bool {
	d := timeutil.DateOnly(date)
	if timeutil.IsWeekend(d) {
		return false
	}
	if d.Before(timeutil.DateOnly(start)) || d.After(periodEnd(end, now)) {
		return false
	}
	return !d.After(timeutil.DateOnly(now))
}

package attendance

import (
	"math"
	"sort"
	"time"

	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// DefaultTrendWindow is the number of most recent records compared against
// the older baseline in AttendanceTrend.
const DefaultTrendWindow = 14

// Trend and risk thresholds.
const (
	trendMinRecords = 4
	trendDelta      = 0.10
	highRiskRate    = 75.0
	mediumRiskRate  = 85.0
	highRiskRatio   = 0.15
	mediumRiskRatio = 0.05
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// percent returns part/total as a percentage in [0, 100], or 0 for an empty
// total.
func percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round2(math.Min(100, 100*float64(part)/float64(total)))
}

// computeRates divides by the larger of the expected and the recorded days,
// so surplus records cannot push the two rates past 100 together. Without
// expected days both rates are 0.
func (s *Statistics) computeRates() {
	s.AttendanceRate, s.AbsenteeRate = 0, 0
	if s.TotalDays <= 0 {
		return
	}
	base := max(s.TotalDays, s.PresentDays+s.AbsentDays)
	s.AttendanceRate = percent(s.PresentDays, base)
	s.AbsenteeRate = percent(s.AbsentDays, base)
}

// StudentStatistics aggregates one student's records against the number of
// expected working days. Unrecorded days never go negative: surplus records
// are the bulk validator's concern, not this one's.
func StudentStatistics(records []Record, totalWorkingDays int) Statistics {
	stats := Statistics{TotalDays: totalWorkingDays}
	for _, r := range records {
		switch r.Status {
		case StatusPresent:
			stats.PresentDays++
		case StatusAbsentSick:
			stats.AbsentSickDays++
		case StatusAbsentExcused:
			stats.AbsentExcusedDays++
		case StatusAbsentUnexcused:
			stats.AbsentUnexcusedDays++
		}
	}
	stats.AbsentDays = stats.AbsentSickDays + stats.AbsentExcusedDays + stats.AbsentUnexcusedDays
	stats.UnrecordedDays = max(0, totalWorkingDays-stats.PresentDays-stats.AbsentDays)
	stats.computeRates()
	return stats
}

// CohortStatistics sums per-student statistics and recomputes the rates from
// the totals, so students with more expected days weigh more.
func CohortStatistics(students []Statistics) Statistics {
	var total Statistics
	for _, s := range students {
		total.TotalDays += s.TotalDays
		total.PresentDays += s.PresentDays
		total.AbsentDays += s.AbsentDays
		total.AbsentSickDays += s.AbsentSickDays
		total.AbsentExcusedDays += s.AbsentExcusedDays
		total.AbsentUnexcusedDays += s.AbsentUnexcusedDays
		total.UnrecordedDays += s.UnrecordedDays
	}
	total.computeRates()
	return total
}

// sortedDesc returns a copy of records ordered newest first.
func sortedDesc(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return timeutil.After(out[i].Date, out[j].Date)
	})
	return out
}

func presentFraction(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	present := 0
	for _, r := range records {
		if r.Status == StatusPresent {
			present++
		}
	}
	return float64(present) / float64(len(records))
}

// AttendanceTrend compares the present fraction of the recentWindow newest
// records with that of all older records. The window counts records, not
// calendar days. Fewer than four records, or no older records, is stable.
func AttendanceTrend(records []Record, recentWindow int) Trend {
	if recentWindow <= 0 {
		recentWindow = DefaultTrendWindow
	}
	if len(records) < trendMinRecords {
		return TrendStable
	}
	sorted := sortedDesc(records)
	if len(sorted) <= recentWindow {
		return TrendStable
	}

	diff := presentFraction(sorted[:recentWindow]) - presentFraction(sorted[recentWindow:])
	switch {
	case diff > trendDelta:
		return TrendImproving
	case diff < -trendDelta:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// RiskLevelFor classifies statistics by attendance rate and the share of
// unexcused absences.
func RiskLevelFor(stats Statistics) RiskLevel {
	unexcusedRatio := 0.0
	if stats.TotalDays > 0 {
		unexcusedRatio = float64(stats.AbsentUnexcusedDays) / float64(stats.TotalDays)
	}
	switch {
	case stats.AttendanceRate < highRiskRate || unexcusedRatio > highRiskRatio:
		return RiskHigh
	case stats.AttendanceRate < mediumRiskRate || unexcusedRatio > mediumRiskRatio:
		return RiskMedium
	default:
		return RiskLow
	}
}

func streakTypeOf(s Status) StreakType {
	if s.IsAbsent() {
		return StreakAbsent
	}
	return StreakPresent
}

// AttendanceStreak measures runs of present or absent records, newest first.
// Dates without a record are simply absent from the list and do not break a
// run.
func AttendanceStreak(records []Record) Streak {
	if len(records) == 0 {
		return Streak{Type: StreakPresent}
	}
	sorted := sortedDesc(records)
	streak := Streak{Type: streakTypeOf(sorted[0].Status)}

	for _, r := range sorted {
		if streakTypeOf(r.Status) != streak.Type {
			break
		}
		streak.CurrentStreak++
	}

	run := 0
	var runType StreakType
	for i, r := range sorted {
		t := streakTypeOf(r.Status)
		if i == 0 || t != runType {
			runType = t
			run = 0
		}
		run++
		streak.LongestStreak = max(streak.LongestStreak, run)
	}
	return streak
}

// MonthlyAttendance computes statistics for the records that fall in the
// given calendar month, against that month's working days.
func MonthlyAttendance(records []Record, year int, month time.Month) MonthlyStatistics {
	inMonth := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Date.Year() == year && r.Date.Month() == month {
			inMonth = append(inMonth, r)
		}
	}
	workingDays := CalculateWorkingDays(timeutil.StartOfMonth(year, month), timeutil.EndOfMonth(year, month))
	return MonthlyStatistics{
		Statistics: StudentStatistics(inMonth, workingDays),
		Month:      int(month),
		Year:       year,
	}
}

// dateKeys indexes records by their ISO date.
func dateKeys(records []Record) map[string]struct{} {
	keys := make(map[string]struct{}, len(records))
	for _, r := range records {
		keys[timeutil.FormatDateStr(r.Date)] = struct{}{}
	}
	return keys
}

// MissingAttendanceDates lists working days in [start, end] that have no
// record.
func MissingAttendanceDates(records []Record, start, end time.Time) []time.Time {
	recorded := dateKeys(records)
	missing := make([]time.Time, 0)
	for _, d := range WorkingDaysBetween(start, end) {
		if _, ok := recorded[timeutil.FormatDateStr(d)]; !ok {
			missing = append(missing, d)
		}
	}
	return missing
}

// BuildStudentData assembles the per-student read model.
func BuildStudentData(student Student, records []Record, totalWorkingDays, recentWindow int) StudentData {
	stats := StudentStatistics(records, totalWorkingDays)
	if records == nil {
		records = []Record{}
	}
	return StudentData{
		StudentID:   student.ID,
		StudentName: student.Name,
		Records:     records,
		Statistics:  stats,
		Trend:       AttendanceTrend(records, recentWindow),
		RiskLevel:   RiskLevelFor(stats),
	}
}

// BuildCohortData assembles the per-cohort read model from its students.
func BuildCohortData(cohort Cohort, students []StudentData) CohortData {
	perStudent := make([]Statistics, len(students))
	for i, s := range students {
		perStudent[i] = s.Statistics
	}
	return CohortData{
		CohortID:      cohort.ID,
		CohortName:    cohort.Name,
		StartDate:     cohort.StartDate,
		EndDate:       cohort.EndDate,
		TotalStudents: len(students),
		Statistics:    CohortStatistics(perStudent),
	}
}

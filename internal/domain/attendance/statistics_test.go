package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(studentID string, date time.Time, status Status) Record {
	return Record{ID: studentID + "-" + date.Format("20060102"), StudentID: studentID, Date: date, Status: status}
}

// series builds one record per consecutive day starting at start, oldest
// first, with the given statuses.
func series(start time.Time, statuses ...Status) []Record {
	out := make([]Record, len(statuses))
	for i, s := range statuses {
		out[i] = rec("s1", start.AddDate(0, 0, i), s)
	}
	return out
}

func repeat(s Status, n int) []Status {
	out := make([]Status, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestStatus_CodesAndLabels(t *testing.T) {
	for _, s := range AllStatuses {
		parsed, ok := ParseStatusCode(s.Code())
		require.True(t, ok)
		assert.Equal(t, s, parsed)
	}
	assert.Equal(t, "Absent (Sick)", StatusAbsentSick.Label())
	assert.True(t, StatusAbsentExcused.IsAbsent())
	assert.False(t, StatusPresent.IsAbsent())

	s, ok := ParseStatusCode("p")
	assert.True(t, ok)
	assert.Equal(t, StatusPresent, s)

	_, ok = ParseStatusCode("Z")
	assert.False(t, ok)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("absent_sick")
	require.NoError(t, err)
	assert.Equal(t, StatusAbsentSick, s)

	s, err = ParseStatus("u")
	require.NoError(t, err)
	assert.Equal(t, StatusAbsentUnexcused, s)

	_, err = ParseStatus("LATE")
	assert.Error(t, err)
}

func TestStudentStatistics_Scenario(t *testing.T) {
	records := []Record{
		rec("s1", d(2024, 1, 1), StatusPresent),
		rec("s1", d(2024, 1, 2), StatusAbsentUnexcused),
	}

	stats := StudentStatistics(records, 2)

	assert.Equal(t, Statistics{
		TotalDays:           2,
		PresentDays:         1,
		AbsentDays:          1,
		AbsentUnexcusedDays: 1,
		UnrecordedDays:      0,
		AttendanceRate:      50,
		AbsenteeRate:        50,
	}, stats)
}

func TestStudentStatistics_CountsSumToTotal(t *testing.T) {
	records := series(d(2024, 1, 1),
		StatusPresent, StatusPresent, StatusAbsentSick, StatusAbsentExcused, StatusPresent, StatusAbsentUnexcused)

	stats := StudentStatistics(records, 9)

	sum := stats.PresentDays + stats.AbsentSickDays + stats.AbsentExcusedDays + stats.AbsentUnexcusedDays + stats.UnrecordedDays
	assert.Equal(t, 9, sum)
	assert.Equal(t, 3, stats.UnrecordedDays)
	assert.Equal(t, 3, stats.AbsentDays)
	assert.Equal(t, 33.33, stats.AttendanceRate)
	assert.Equal(t, 33.33, stats.AbsenteeRate)
}

func TestStudentStatistics_SurplusRecordsClampUnrecorded(t *testing.T) {
	records := series(d(2024, 1, 1), repeat(StatusPresent, 5)...)

	stats := StudentStatistics(records, 3)

	assert.Equal(t, 0, stats.UnrecordedDays)
	assert.Equal(t, 5, stats.PresentDays)
	assert.LessOrEqual(t, stats.AttendanceRate, 100.0)
}

func TestStudentStatistics_SurplusRecordsKeepRatesWithin100(t *testing.T) {
	statuses := append(repeat(StatusPresent, 3), repeat(StatusAbsentUnexcused, 3)...)

	stats := StudentStatistics(series(d(2024, 1, 1), statuses...), 4)

	assert.Equal(t, 0, stats.UnrecordedDays)
	assert.Equal(t, 50.0, stats.AttendanceRate)
	assert.Equal(t, 50.0, stats.AbsenteeRate)
	assert.LessOrEqual(t, stats.AttendanceRate+stats.AbsenteeRate, 100.0)
}

func TestStudentStatistics_ZeroWorkingDays(t *testing.T) {
	stats := StudentStatistics(nil, 0)

	assert.Equal(t, 0.0, stats.AttendanceRate)
	assert.Equal(t, 0.0, stats.AbsenteeRate)
	assert.Equal(t, 0, stats.UnrecordedDays)
}

func TestCohortStatistics_RecomputesRatesFromSums(t *testing.T) {
	a := StudentStatistics(series(d(2024, 1, 1), repeat(StatusPresent, 10)...), 10)
	b := StudentStatistics(series(d(2024, 1, 1), StatusPresent, StatusAbsentSick), 2)

	cohort := CohortStatistics([]Statistics{a, b})

	assert.Equal(t, 12, cohort.TotalDays)
	assert.Equal(t, 11, cohort.PresentDays)
	assert.Equal(t, 1, cohort.AbsentSickDays)
	assert.Equal(t, 91.67, cohort.AttendanceRate)
	assert.Equal(t, 8.33, cohort.AbsenteeRate)
}

func TestCohortStatistics_Empty(t *testing.T) {
	assert.Equal(t, Statistics{}, CohortStatistics(nil))
}

func TestAttendanceTrend(t *testing.T) {
	start := d(2024, 1, 1)

	t.Run("too few records", func(t *testing.T) {
		records := series(start, StatusAbsentSick, StatusPresent, StatusPresent)
		assert.Equal(t, TrendStable, AttendanceTrend(records, 2))
	})

	t.Run("no older baseline", func(t *testing.T) {
		records := series(start, repeat(StatusPresent, 10)...)
		assert.Equal(t, TrendStable, AttendanceTrend(records, 14))
	})

	t.Run("improving", func(t *testing.T) {
		statuses := append(repeat(StatusAbsentUnexcused, 4), repeat(StatusPresent, 4)...)
		assert.Equal(t, TrendImproving, AttendanceTrend(series(start, statuses...), 4))
	})

	t.Run("declining", func(t *testing.T) {
		statuses := append(repeat(StatusPresent, 4), repeat(StatusAbsentSick, 4)...)
		assert.Equal(t, TrendDeclining, AttendanceTrend(series(start, statuses...), 4))
	})

	t.Run("within ten points is stable", func(t *testing.T) {
		// recent 9 of 10 present against older 10 of 10: exactly ten points
		statuses := append(repeat(StatusPresent, 10), StatusAbsentSick)
		statuses = append(statuses, repeat(StatusPresent, 9)...)
		assert.Equal(t, TrendStable, AttendanceTrend(series(start, statuses...), 10))
	})

	t.Run("input order does not matter", func(t *testing.T) {
		statuses := append(repeat(StatusPresent, 4), repeat(StatusAbsentSick, 4)...)
		records := series(start, statuses...)
		reversed := make([]Record, len(records))
		for i := range records {
			reversed[len(records)-1-i] = records[i]
		}
		assert.Equal(t, TrendDeclining, AttendanceTrend(reversed, 4))
	})

	t.Run("default window", func(t *testing.T) {
		statuses := append(repeat(StatusAbsentSick, 6), repeat(StatusPresent, 14)...)
		assert.Equal(t, TrendImproving, AttendanceTrend(series(start, statuses...), 0))
	})
}

func TestRiskLevelFor(t *testing.T) {
	tests := []struct {
		name  string
		stats Statistics
		want  RiskLevel
	}{
		{"good attendance", Statistics{TotalDays: 100, AttendanceRate: 95}, RiskLow},
		{"below 85", Statistics{TotalDays: 100, AttendanceRate: 80}, RiskMedium},
		{"below 75", Statistics{TotalDays: 100, AttendanceRate: 70}, RiskHigh},
		{"unexcused over 5 percent", Statistics{TotalDays: 100, AttendanceRate: 90, AbsentUnexcusedDays: 6}, RiskMedium},
		{"unexcused over 15 percent", Statistics{TotalDays: 100, AttendanceRate: 90, AbsentUnexcusedDays: 16}, RiskHigh},
		{"exactly 85 is low", Statistics{TotalDays: 100, AttendanceRate: 85}, RiskLow},
		{"no days does not divide by zero", Statistics{TotalDays: 0, AttendanceRate: 0, AbsentUnexcusedDays: 3}, RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RiskLevelFor(tt.stats))
		})
	}
}

func TestRiskLevelFor_Monotonic(t *testing.T) {
	rank := map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}
	for _, unexcused := range []int{0, 4, 10, 20} {
		prev := -1
		for rate := 100.0; rate >= 0; rate -= 0.5 {
			level := rank[RiskLevelFor(Statistics{TotalDays: 100, AbsentUnexcusedDays: unexcused, AttendanceRate: rate})]
			assert.GreaterOrEqual(t, level, prev)
			prev = level
		}
	}
}

func TestAttendanceStreak(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, Streak{Type: StreakPresent}, AttendanceStreak(nil))
	})

	t.Run("current present run", func(t *testing.T) {
		records := series(d(2024, 1, 1),
			StatusPresent, StatusPresent, StatusPresent, StatusAbsentSick, StatusPresent, StatusPresent)

		streak := AttendanceStreak(records)

		assert.Equal(t, StreakPresent, streak.Type)
		assert.Equal(t, 2, streak.CurrentStreak)
		assert.Equal(t, 3, streak.LongestStreak)
	})

	t.Run("absence statuses collapse", func(t *testing.T) {
		records := series(d(2024, 1, 1),
			StatusPresent, StatusAbsentSick, StatusAbsentExcused, StatusAbsentUnexcused)

		streak := AttendanceStreak(records)

		assert.Equal(t, StreakAbsent, streak.Type)
		assert.Equal(t, 3, streak.CurrentStreak)
		assert.Equal(t, 3, streak.LongestStreak)
	})

	t.Run("gaps do not break a run", func(t *testing.T) {
		records := []Record{
			rec("s1", d(2024, 1, 1), StatusPresent),
			rec("s1", d(2024, 1, 10), StatusPresent),
			rec("s1", d(2024, 1, 22), StatusPresent),
		}
		assert.Equal(t, Streak{CurrentStreak: 3, LongestStreak: 3, Type: StreakPresent}, AttendanceStreak(records))
	})
}

func TestMonthlyAttendance(t *testing.T) {
	records := []Record{
		rec("s1", d(2024, 1, 31), StatusPresent),
		rec("s1", d(2024, 2, 1), StatusPresent),
		rec("s1", d(2024, 2, 2), StatusAbsentSick),
		rec("s1", d(2024, 3, 1), StatusPresent),
	}

	monthly := MonthlyAttendance(records, 2024, time.February)

	assert.Equal(t, 2, monthly.Month)
	assert.Equal(t, 2024, monthly.Year)
	assert.Equal(t, 21, monthly.TotalDays)
	assert.Equal(t, 1, monthly.PresentDays)
	assert.Equal(t, 1, monthly.AbsentSickDays)
	assert.Equal(t, 19, monthly.UnrecordedDays)
	assert.Equal(t, 4.76, monthly.AttendanceRate)
}

func TestMissingAttendanceDates(t *testing.T) {
	records := []Record{
		rec("s1", time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), StatusPresent),
		rec("s1", d(2024, 1, 4), StatusAbsentSick),
		rec("s1", d(2024, 1, 6), StatusPresent),
	}

	missing := MissingAttendanceDates(records, d(2024, 1, 1), d(2024, 1, 7))

	assert.Equal(t, []time.Time{d(2024, 1, 1), d(2024, 1, 3), d(2024, 1, 5)}, missing)
}

func TestBuildStudentAndCohortData(t *testing.T) {
	alice := BuildStudentData(Student{ID: "s1", Name: "Alice"},
		series(d(2024, 1, 1), repeat(StatusPresent, 10)...), 10, 0)
	bob := BuildStudentData(Student{ID: "s2", Name: "Bob"},
		[]Record{rec("s2", d(2024, 1, 1), StatusAbsentUnexcused)}, 10, 0)

	assert.Equal(t, RiskLow, alice.RiskLevel)
	assert.Equal(t, TrendStable, alice.Trend)
	assert.Equal(t, RiskHigh, bob.RiskLevel)

	cohort := BuildCohortData(Cohort{ID: "c1", Name: "Spring", StartDate: d(2024, 1, 1)}, []StudentData{alice, bob})

	assert.Equal(t, 2, cohort.TotalStudents)
	assert.Equal(t, 20, cohort.Statistics.TotalDays)
	assert.Equal(t, 50.0, cohort.Statistics.AttendanceRate)
	assert.Equal(t, 9, cohort.Statistics.UnrecordedDays)
}

func TestBuildStudentData_NilRecords(t *testing.T) {
	data := BuildStudentData(Student{ID: "s1"}, nil, 5, 14)
	assert.NotNil(t, data.Records)
	assert.Equal(t, 5, data.Statistics.UnrecordedDays)
}

package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

const (
	topPerformers    = 5
	targetAttendance = 85.0
)

func heading(b *strings.Builder, title string) {
	fmt.Fprintf(b, "%s\n%s\n", title, strings.Repeat("-", len(title)))
}

// GenerateSummaryReport renders a plain-text report for coordinators:
// overview, risk breakdown, top performers, students needing attention and
// recommendations.
func GenerateSummaryReport(cohort attendance.CohortData, students []attendance.StudentData) string {
	var b strings.Builder
	stats := cohort.Statistics

	title := "ATTENDANCE SUMMARY REPORT"
	fmt.Fprintf(&b, "%s\n%s\n\n", title, strings.Repeat("=", len(title)))

	period := "Present"
	if cohort.EndDate != nil {
		period = timeutil.FormatDateStr(*cohort.EndDate)
	}
	fmt.Fprintf(&b, "Cohort: %s\n", cohort.CohortName)
	fmt.Fprintf(&b, "Period: %s to %s\n", timeutil.FormatDateStr(cohort.StartDate), period)
	fmt.Fprintf(&b, "Total Students: %d\n\n", len(students))

	heading(&b, "OVERVIEW")
	fmt.Fprintf(&b, "Overall Attendance Rate: %.1f%%\n", stats.AttendanceRate)
	fmt.Fprintf(&b, "Absentee Rate: %.1f%%\n", stats.AbsenteeRate)
	fmt.Fprintf(&b, "Total Student-Days: %d\n", stats.TotalDays)
	fmt.Fprintf(&b, "Present Days: %d\n", stats.PresentDays)
	fmt.Fprintf(&b, "Absent Days: %d (Sick: %d, Excused: %d, Unexcused: %d)\n",
		stats.AbsentDays, stats.AbsentSickDays, stats.AbsentExcusedDays, stats.AbsentUnexcusedDays)
	fmt.Fprintf(&b, "Unrecorded Days: %d\n\n", stats.UnrecordedDays)

	risk := map[attendance.RiskLevel]int{}
	declining := 0
	for _, s := range students {
		risk[s.RiskLevel]++
		if s.Trend == attendance.TrendDeclining {
			declining++
		}
	}
	heading(&b, "RISK BREAKDOWN")
	fmt.Fprintf(&b, "Low Risk: %d\n", risk[attendance.RiskLow])
	fmt.Fprintf(&b, "Medium Risk: %d\n", risk[attendance.RiskMedium])
	fmt.Fprintf(&b, "High Risk: %d\n\n", risk[attendance.RiskHigh])

	ranked := make([]attendance.StudentData, len(students))
	copy(ranked, students)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Statistics.AttendanceRate != ranked[j].Statistics.AttendanceRate {
			return ranked[i].Statistics.AttendanceRate > ranked[j].Statistics.AttendanceRate
		}
		return ranked[i].StudentName < ranked[j].StudentName
	})
	heading(&b, "TOP PERFORMERS")
	if len(ranked) == 0 {
		b.WriteString("None\n")
	}
	for i, s := range ranked[:min(topPerformers, len(ranked))] {
		fmt.Fprintf(&b, "%d. %s - %.1f%%\n", i+1, s.StudentName, s.Statistics.AttendanceRate)
	}
	b.WriteByte('\n')

	var attention []attendance.StudentData
	for _, s := range ranked {
		if s.RiskLevel == attendance.RiskHigh || s.RiskLevel == attendance.RiskMedium {
			attention = append(attention, s)
		}
	}
	sort.SliceStable(attention, func(i, j int) bool {
		if attention[i].Statistics.AttendanceRate != attention[j].Statistics.AttendanceRate {
			return attention[i].Statistics.AttendanceRate < attention[j].Statistics.AttendanceRate
		}
		return attention[i].StudentName < attention[j].StudentName
	})
	heading(&b, "STUDENTS NEEDING ATTENTION")
	if len(attention) == 0 {
		b.WriteString("None\n")
	}
	for _, s := range attention {
		fmt.Fprintf(&b, "- %s: %.1f%% (%s risk, %s trend)\n",
			s.StudentName, s.Statistics.AttendanceRate, s.RiskLevel, s.Trend)
	}
	b.WriteByte('\n')

	heading(&b, "RECOMMENDATIONS")
	var recs []string
	if n := risk[attendance.RiskHigh]; n > 0 {
		recs = append(recs, fmt.Sprintf("Schedule check-ins with %d high-risk student(s).", n))
	}
	if stats.TotalDays > 0 && stats.AttendanceRate < targetAttendance {
		recs = append(recs, "Overall attendance is below the 85% target. Review engagement strategies.")
	}
	if declining > 0 {
		recs = append(recs, fmt.Sprintf("%d student(s) show declining attendance trends.", declining))
	}
	if stats.UnrecordedDays > 0 {
		recs = append(recs, fmt.Sprintf("Complete missing attendance records (%d unrecorded days).", stats.UnrecordedDays))
	}
	if len(recs) == 0 {
		recs = append(recs, "Attendance is on track. Keep up the good work!")
	}
	for _, r := range recs {
		fmt.Fprintf(&b, "- %s\n", r)
	}

	return b.String()
}

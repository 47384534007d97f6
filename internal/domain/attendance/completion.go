package attendance

import (
	"fmt"
	"sort"
	"time"

	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// Completion thresholds.
const (
	cohortCompletionTarget  = 95.0
	studentCompletionTarget = 90.0
	recentWindowDays        = 7
)

// BackfillReason is stamped on records generated to fill gaps.
const BackfillReason = "Backfill missing data"

// StudentCompletion is one student's share of a completion report.
type StudentCompletion struct {
	StudentID      string      `json:"studentId"`
	MissingDates   []time.Time `json:"missingDates"`
	MissingCount   int         `json:"missingCount"`
	CompletionRate float64     `json:"completionRate"`
}

// CompletionReport compares expected working days with recorded attendance.
type CompletionReport struct {
	TotalWorkingDays    int                 `json:"totalWorkingDays"`
	TotalStudents       int                 `json:"totalStudents"`
	ExpectedRecords     int                 `json:"expectedRecords"`
	ExistingRecords     int                 `json:"existingRecords"`
	CompletionRate      float64             `json:"completionRate"`
	Students            []StudentCompletion `json:"students"`
	OverallMissingDates []time.Time         `json:"overallMissingDates"`
	Recommendations     []string            `json:"recommendations"`
}

// MissingByStudent returns each student's missing dates, for feeding
// CreateMissingTemplate.
func (r CompletionReport) MissingByStudent() map[string][]time.Time {
	out := make(map[string][]time.Time, len(r.Students))
	for _, s := range r.Students {
		if len(s.MissingDates) > 0 {
			out[s.StudentID] = s.MissingDates
		}
	}
	return out
}

// GenerateCompletionReport finds, for each student, the working days between
// cohort start and min(cohort end, today) that have no record, and derives
// completion rates and recommendations.
func GenerateCompletionReport(studentIDs []string, cohortStart time.Time, cohortEnd *time.Time, existing []Record, now time.Time) CompletionReport {
	calendar := WorkingDaysBetween(cohortStart, AttendanceWindowEnd(cohortEnd, now))

	byStudent := make(map[string][]Record)
	for _, r := range existing {
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r)
	}

	report := CompletionReport{
		TotalWorkingDays:    len(calendar),
		TotalStudents:       len(studentIDs),
		ExpectedRecords:     len(calendar) * len(studentIDs),
		ExistingRecords:     len(existing),
		Students:            make([]StudentCompletion, 0, len(studentIDs)),
		OverallMissingDates: make([]time.Time, 0),
		Recommendations:     make([]string, 0),
	}

	overall := make(map[string]time.Time)
	lowCompletion := 0
	for _, id := range studentIDs {
		recorded := dateKeys(byStudent[id])
		missing := make([]time.Time, 0)
		for _, d := range calendar {
			key := timeutil.FormatDateStr(d)
			if _, ok := recorded[key]; !ok {
				missing = append(missing, d)
				overall[key] = d
			}
		}

		rate := percent(len(calendar)-len(missing), len(calendar))
		if rate < studentCompletionTarget {
			lowCompletion++
		}
		report.Students = append(report.Students, StudentCompletion{
			StudentID:      id,
			MissingDates:   missing,
			MissingCount:   len(missing),
			CompletionRate: rate,
		})
	}

	for _, d := range overall {
		report.OverallMissingDates = append(report.OverallMissingDates, d)
	}
	sort.Slice(report.OverallMissingDates, func(i, j int) bool {
		return report.OverallMissingDates[i].Before(report.OverallMissingDates[j])
	})

	// Nothing is due yet, so there is nothing to recommend.
	if report.ExpectedRecords == 0 {
		return report
	}
	report.CompletionRate = round2(100 * float64(report.ExistingRecords) / float64(report.ExpectedRecords))

	if report.CompletionRate < cohortCompletionTarget {
		report.Recommendations = append(report.Recommendations, fmt.Sprintf(
			"Overall attendance completion is %.1f%%. Consider backfilling missing records.", report.CompletionRate))
	}
	if lowCompletion > 0 {
		report.Recommendations = append(report.Recommendations, fmt.Sprintf(
			"%d student(s) have less than 90%% attendance completion.", lowCompletion))
	}
	recentCutoff := timeutil.AddDays(now, -recentWindowDays)
	for _, d := range report.OverallMissingDates {
		if !d.Before(recentCutoff) {
			report.Recommendations = append(report.Recommendations,
				"Recent attendance records are missing. Please update attendance for the past week.")
			break
		}
	}

	return report
}

// CreateMissingTemplate turns missing dates into backfill records, ordered by
// date and then student.
func CreateMissingTemplate(missing map[string][]time.Time, defaultStatus Status) []BulkRecord {
	if defaultStatus == "" {
		defaultStatus = StatusPresent
	}

	records := make([]BulkRecord, 0)
	for studentID, dates := range missing {
		for _, d := range dates {
			records = append(records, BulkRecord{
				StudentID: studentID,
				Date:      timeutil.DateOnly(d),
				Status:    defaultStatus,
				Source:    SourceSystem,
				Metadata:  map[string]any{MetadataReason: BackfillReason},
			})
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].StudentID < records[j].StudentID
	})
	return records
}

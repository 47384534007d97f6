// Package export renders attendance read models as CSV, JSON and plain-text
// reports, and parses CSV back into import candidates.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// Format selects an export encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatSummary Format = "summary"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatSummary:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Options narrows an export.
type Options struct {
	StartDate         *time.Time
	EndDate           *time.Time
	IncludeStatistics bool
}

// DateRange is an inclusive range of ISO dates.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Metadata describes an export.
type Metadata struct {
	ExportDate    time.Time `json:"exportDate"`
	CohortID      string    `json:"cohortId"`
	CohortName    string    `json:"cohortName"`
	DateRange     DateRange `json:"dateRange"`
	TotalStudents int       `json:"totalStudents"`
	TotalRecords  int       `json:"totalRecords"`
}

// Record is one exported attendance row.
type Record struct {
	Date   string            `json:"date"`
	Status attendance.Status `json:"status"`
}

// Student is one student's section of an export.
type Student struct {
	StudentID   string                `json:"studentId"`
	StudentName string                `json:"studentName"`
	Statistics  attendance.Statistics `json:"statistics"`
	Records     []Record              `json:"records"`
}

// Data is the full export document.
type Data struct {
	Metadata   Metadata               `json:"metadata"`
	Students   []Student              `json:"students"`
	Statistics *attendance.Statistics `json:"statistics,omitempty"`
}

// PrepareExportData builds the export document. The date range is the
// explicit one from opts when given, otherwise the cohort's own bounds with
// today standing in for a missing end date.
func PrepareExportData(cohort attendance.CohortData, students []attendance.StudentData, opts Options, now time.Time) Data {
	start := timeutil.DateOnly(cohort.StartDate)
	if opts.StartDate != nil {
		start = timeutil.DateOnly(*opts.StartDate)
	}
	end := timeutil.DateOnly(now)
	if opts.EndDate != nil {
		end = timeutil.DateOnly(*opts.EndDate)
	} else if cohort.EndDate != nil {
		end = timeutil.DateOnly(*cohort.EndDate)
	}

	data := Data{
		Metadata: Metadata{
			ExportDate: now.UTC(),
			CohortID:   cohort.CohortID,
			CohortName: cohort.CohortName,
			DateRange: DateRange{
				Start: timeutil.FormatDateStr(start),
				End:   timeutil.FormatDateStr(end),
			},
			TotalStudents: len(students),
		},
		Students: make([]Student, 0, len(students)),
	}

	for _, s := range students {
		records := make([]Record, 0, len(s.Records))
		for _, r := range s.Records {
			day := timeutil.DateOnly(r.Date)
			if day.Before(start) || day.After(end) {
				continue
			}
			records = append(records, Record{Date: timeutil.FormatDateStr(day), Status: r.Status})
		}
		sort.SliceStable(records, func(i, j int) bool { return records[i].Date < records[j].Date })

		data.Metadata.TotalRecords += len(records)
		data.Students = append(data.Students, Student{
			StudentID:   s.StudentID,
			StudentName: s.StudentName,
			Statistics:  s.Statistics,
			Records:     records,
		})
	}

	if opts.IncludeStatistics {
		stats := cohort.Statistics
		data.Statistics = &stats
	}
	return data
}

// Section titles of the CSV export.
const (
	sectionSummary    = "Student Summary"
	sectionDetails    = "Attendance Details"
	sectionStatistics = "Cohort Statistics"
)

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func row(b *strings.Builder, fields ...string) {
	b.WriteString(strings.Join(fields, ","))
	b.WriteByte('\n')
}

func quotedRow(b *strings.Builder, fields ...string) {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quote(f)
	}
	row(b, quoted...)
}

// GenerateCSV renders the export as sectioned CSV: a commented metadata
// header, a per-student summary, the attendance details and, when present,
// cohort statistics. Strings are quoted, numbers are not.
func GenerateCSV(data Data) string {
	var b strings.Builder
	m := data.Metadata

	fmt.Fprintf(&b, "# Attendance Export\n")
	fmt.Fprintf(&b, "# Cohort: %s (%s)\n", m.CohortName, m.CohortID)
	fmt.Fprintf(&b, "# Date Range: %s to %s\n", m.DateRange.Start, m.DateRange.End)
	fmt.Fprintf(&b, "# Export Date: %s\n", m.ExportDate.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "# Total Students: %d\n", m.TotalStudents)
	fmt.Fprintf(&b, "# Total Records: %d\n", m.TotalRecords)
	b.WriteByte('\n')

	b.WriteString(sectionSummary + "\n")
	quotedRow(&b, "Student ID", "Student Name", "Total Days", "Present", "Absent (Sick)",
		"Absent (Excused)", "Absent (Unexcused)", "Unrecorded", "Attendance Rate (%)")
	for _, s := range data.Students {
		st := s.Statistics
		row(&b, quote(s.StudentID), quote(s.StudentName),
			strconv.Itoa(st.TotalDays),
			strconv.Itoa(st.PresentDays),
			strconv.Itoa(st.AbsentSickDays),
			strconv.Itoa(st.AbsentExcusedDays),
			strconv.Itoa(st.AbsentUnexcusedDays),
			strconv.Itoa(st.UnrecordedDays),
			number(st.AttendanceRate))
	}
	b.WriteByte('\n')

	b.WriteString(sectionDetails + "\n")
	quotedRow(&b, "Student ID", "Student Name", "Date", "Status", "Code")
	for _, s := range data.Students {
		for _, r := range s.Records {
			quotedRow(&b, s.StudentID, s.StudentName, r.Date, r.Status.Label(), r.Status.Code())
		}
	}

	if st := data.Statistics; st != nil {
		b.WriteByte('\n')
		b.WriteString(sectionStatistics + "\n")
		row(&b, quote("Total Days"), strconv.Itoa(st.TotalDays))
		row(&b, quote("Present Days"), strconv.Itoa(st.PresentDays))
		row(&b, quote("Absent Days"), strconv.Itoa(st.AbsentDays))
		row(&b, quote("Unrecorded Days"), strconv.Itoa(st.UnrecordedDays))
		row(&b, quote("Attendance Rate (%)"), number(st.AttendanceRate))
		row(&b, quote("Absentee Rate (%)"), number(st.AbsenteeRate))
	}

	return b.String()
}

// GenerateJSON renders the export as indented JSON.
func GenerateJSON(data Data) (string, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}
	return string(out), nil
}

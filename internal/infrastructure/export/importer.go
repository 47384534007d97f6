package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// ImportRecord is one attendance row recovered from CSV.
type ImportRecord struct {
	StudentID   string            `json:"studentId"`
	StudentName string            `json:"studentName"`
	Date        time.Time         `json:"date"`
	Status      attendance.Status `json:"status"`
}

// ParseResult is the outcome of ParseCSV. Data is set only on success.
type ParseResult struct {
	Success bool           `json:"success"`
	Data    []ImportRecord `json:"data,omitempty"`
	Errors  []string       `json:"errors,omitempty"`
}

// ImportValidationResult is the outcome of ValidateImportData.
type ImportValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ToBulkRecords converts parsed rows into bulk write candidates.
func ToBulkRecords(records []ImportRecord, source string) []attendance.BulkRecord {
	out := make([]attendance.BulkRecord, len(records))
	for i, r := range records {
		out[i] = attendance.BulkRecord{
			StudentID: r.StudentID,
			Date:      r.Date,
			Status:    r.Status,
			Source:    source,
		}
	}
	return out
}

func isSectionTitle(fields []string) bool {
	if len(fields) != 1 {
		return false
	}
	switch strings.TrimSpace(fields[0]) {
	case sectionSummary, sectionDetails, sectionStatistics:
		return true
	}
	return false
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// csvRow is one logical CSV record with the physical line it starts on.
type csvRow struct {
	line   int
	fields []string
	err    error
}

func readRows(input string) []csvRow {
	r := csv.NewReader(strings.NewReader(input))
	r.FieldsPerRecord = -1
	r.Comment = '#'

	var rows []csvRow
	for {
		fields, err := r.Read()
		if err == io.EOF {
			return rows
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return append(rows, csvRow{err: err})
			}
			rows = append(rows, csvRow{line: pe.StartLine, err: pe.Err})
			continue
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, csvRow{line: line, fields: fields})
	}
}

// ParseCSV reads attendance rows from the detail section of a CSV export, or
// from every data row when the input has no section titles. Quoted fields
// may span lines; line numbers refer to the line a record starts on. Student
// ID and name are kept verbatim. Malformed records are reported individually
// and parsing continues; the result succeeds only when no record failed.
func ParseCSV(input string) (result ParseResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ParseResult{Errors: []string{fmt.Sprintf("Failed to parse CSV: %v", r)}}
		}
	}()

	input = strings.TrimPrefix(input, "\ufeff")
	if strings.TrimSpace(input) == "" {
		return ParseResult{Errors: []string{"CSV data is empty"}}
	}

	rows := readRows(input)
	sectioned := false
	for _, row := range rows {
		if row.err == nil && isSectionTitle(row.fields) && strings.TrimSpace(row.fields[0]) == sectionDetails {
			sectioned = true
			break
		}
	}

	var (
		records  = make([]ImportRecord, 0)
		errs     []string
		inDetail = !sectioned
	)
	for _, row := range rows {
		if row.err != nil {
			if inDetail {
				errs = append(errs, fmt.Sprintf("Line %d: %v", row.line, row.err))
			}
			continue
		}
		fields := row.fields
		if isBlank(fields) {
			continue
		}
		if sectioned && isSectionTitle(fields) {
			inDetail = strings.TrimSpace(fields[0]) == sectionDetails
			continue
		}
		if !inDetail || strings.EqualFold(strings.TrimSpace(fields[0]), "Student ID") {
			continue
		}
		if len(fields) < 4 {
			errs = append(errs, fmt.Sprintf("Line %d: Expected at least 4 columns, got %d", row.line, len(fields)))
			continue
		}

		dateStr := strings.TrimSpace(fields[2])
		date, err := timeutil.ParseDate(dateStr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Line %d: Invalid date format: %s", row.line, dateStr))
			continue
		}

		code := fields[3]
		if len(fields) >= 5 {
			code = fields[4]
		}
		code = strings.TrimSpace(code)
		status, ok := attendance.ParseStatusCode(code)
		if !ok {
			errs = append(errs, fmt.Sprintf("Line %d: Invalid status code: %s", row.line, code))
			continue
		}

		records = append(records, ImportRecord{
			StudentID:   fields[0],
			StudentName: fields[1],
			Date:        date,
			Status:      status,
		})
	}

	if len(errs) > 0 {
		return ParseResult{Errors: errs}
	}
	return ParseResult{Success: true, Data: records}
}

// ValidateImportData re-checks parsed rows against the cohort period, the
// current date and duplicates within the file. Rows are numbered from 1.
func ValidateImportData(records []ImportRecord, cohortStart time.Time, cohortEnd *time.Time, now time.Time) ImportValidationResult {
	result := ImportValidationResult{
		Errors:   make([]string, 0),
		Warnings: make([]string, 0),
	}

	today := timeutil.DateOnly(now)
	start := timeutil.DateOnly(cohortStart)
	seen := make(map[string]struct{}, len(records))

	for i, r := range records {
		n := i + 1
		day := timeutil.DateOnly(r.Date)
		ds := timeutil.FormatDateStr(day)

		if strings.TrimSpace(r.StudentID) == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Missing student ID", n))
		}
		if day.Before(start) {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Date %s is before cohort start date %s",
				n, ds, timeutil.FormatDateStr(start)))
		}
		if cohortEnd != nil && day.After(timeutil.DateOnly(*cohortEnd)) {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Date %s is after cohort end date %s",
				n, ds, timeutil.FormatDateStr(*cohortEnd)))
		}
		if day.After(today) {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Cannot import attendance for future date %s", n, ds))
		}
		if timeutil.IsWeekend(day) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Row %d: Date %s falls on a weekend", n, ds))
		}
		if timeutil.DaysBetween(day, today) > 30 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Row %d: Date %s is older than 30 days", n, ds))
		}

		key := r.StudentID + "|" + ds
		if _, dup := seen[key]; dup {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Duplicate entry for student %s on %s", n, r.StudentID, ds))
		} else {
			seen[key] = struct{}{}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

package attendance

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// Record sources.
const (
	SourceManual = "manual"
	SourceSystem = "system"
	SourceImport = "import"
)

// Metadata keys understood by the bulk validator.
const (
	MetadataNotes  = "notes"
	MetadataReason = "reason"
)

// DefaultBatchSize is the chunk size used when none is given.
const DefaultBatchSize = 100

// DefaultThroughput is the assumed write rate in records per second.
const DefaultThroughput = 50

// editWindowDays is how far back attendance may be edited without approval.
const editWindowDays = 30

// bytesPerRecord is the memory estimate per record in EstimateBulkPerformance.
const bytesPerRecord = 1024

// ══════════════════════════════════════════════════════════════════════════════
// BULK TYPES
// ══════════════════════════════════════════════════════════════════════════════

// BulkRecord is a proposed attendance write.
type BulkRecord struct {
	StudentID string         `json:"studentId"`
	Date      time.Time      `json:"date"`
	Status    Status         `json:"status"`
	Source    string         `json:"source,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PreparedRecord is a BulkRecord stamped with cohort and author, ready for
// the persistence layer.
type PreparedRecord struct {
	StudentID string         `json:"studentId"`
	CohortID  string         `json:"cohortId"`
	Date      time.Time      `json:"date"`
	Status    Status         `json:"status"`
	Source    string         `json:"source"`
	CreatedBy string         `json:"createdBy"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ValidationIssue points at one problem in a bulk input.
type ValidationIssue struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BulkValidationStats counts what the validator saw.
type BulkValidationStats struct {
	TotalRecords     int `json:"totalRecords"`
	ValidRecords     int `json:"validRecords"`
	InvalidRecords   int `json:"invalidRecords"`
	DuplicateRecords int `json:"duplicateRecords"`
	WeekendRecords   int `json:"weekendRecords"`
	FutureRecords    int `json:"futureRecords"`
}

// BulkValidationResult is the outcome of ValidateBulkRecords. Valid is true
// when there are no errors; warnings never block a write.
type BulkValidationResult struct {
	Valid      bool                `json:"valid"`
	Errors     []ValidationIssue   `json:"errors"`
	Warnings   []ValidationIssue   `json:"warnings"`
	Statistics BulkValidationStats `json:"statistics"`
}

// OperationIssue is an error or warning raised while writing a batch.
type OperationIssue struct {
	Index     int    `json:"index"`
	StudentID string `json:"studentId,omitempty"`
	Date      string `json:"date,omitempty"`
	Message   string `json:"message"`
}

// OperationSummary carries the timing of a bulk write.
type OperationSummary struct {
	Duration         time.Duration `json:"duration"`
	RecordsPerSecond float64       `json:"recordsPerSecond"`
}

// BulkOperationResult is the outcome of writing one or more batches.
type BulkOperationResult struct {
	Success        bool             `json:"success"`
	TotalProcessed int              `json:"totalProcessed"`
	Created        int              `json:"created"`
	Updated        int              `json:"updated"`
	Skipped        int              `json:"skipped"`
	Failed         int              `json:"failed"`
	Errors         []OperationIssue `json:"errors"`
	Warnings       []OperationIssue `json:"warnings"`
	Summary        OperationSummary `json:"summary"`
}

// PerformanceEstimate is a rough sizing of a bulk write.
type PerformanceEstimate struct {
	EstimatedDuration    float64 `json:"estimatedDuration"` // seconds
	RecommendedBatchSize int     `json:"recommendedBatchSize"`
	TotalBatches         int     `json:"totalBatches"`
	EstimatedMemoryUsage int     `json:"estimatedMemoryUsage"` // bytes
}

// TemplateOptions configures GenerateBulkTemplate. The zero value marks
// everyone present on working days only.
type TemplateOptions struct {
	DefaultStatus   Status
	IncludeWeekends bool
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// ValidateBulkRecords checks a proposed batch before it is written. Every
// problem is reported against the record's input index. Duplicate detection
// covers this batch only; the first occurrence of a (student, date) pair is
// accepted and later ones are errors. A nil validStudentIDs skips the
// enrollment check.
func ValidateBulkRecords(records []BulkRecord, cohortStart time.Time, cohortEnd *time.Time, validStudentIDs []string, now time.Time) BulkValidationResult {
	result := BulkValidationResult{
		Errors:   make([]ValidationIssue, 0),
		Warnings: make([]ValidationIssue, 0),
	}
	result.Statistics.TotalRecords = len(records)

	var enrolled map[string]struct{}
	if validStudentIDs != nil {
		enrolled = make(map[string]struct{}, len(validStudentIDs))
		for _, id := range validStudentIDs {
			enrolled[id] = struct{}{}
		}
	}

	today := timeutil.DateOnly(now)
	start := timeutil.DateOnly(cohortStart)
	end := periodEnd(cohortEnd, now)
	seen := make(map[string]struct{}, len(records))

	for i, rec := range records {
		hasError := false
		fail := func(field, msg string) {
			hasError = true
			result.Errors = append(result.Errors, ValidationIssue{Index: i, Field: field, Message: msg})
		}
		warn := func(field, msg string) {
			result.Warnings = append(result.Warnings, ValidationIssue{Index: i, Field: field, Message: msg})
		}

		studentID := strings.TrimSpace(rec.StudentID)
		if studentID == "" {
			fail("studentId", "Student ID is required and must be a string")
		} else if enrolled != nil {
			if _, ok := enrolled[studentID]; !ok {
				fail("studentId", fmt.Sprintf("Student %s is not enrolled in this cohort", studentID))
			}
		}

		if rec.Date.IsZero() {
			fail("date", "Valid date is required")
		} else {
			d := timeutil.DateOnly(rec.Date)
			if d.Before(start) || d.After(end) {
				fail("date", fmt.Sprintf("Date must be within cohort period (%s to %s)",
					timeutil.FormatDateStr(start), timeutil.FormatDateStr(end)))
			}
			if d.After(today) {
				fail("date", "Cannot record attendance for future dates")
				result.Statistics.FutureRecords++
			}
			if timeutil.IsWeekend(d) {
				warn("date", "Attendance recorded on a weekend")
				result.Statistics.WeekendRecords++
			}
			if studentID != "" {
				key := studentID + "|" + timeutil.FormatDateStr(d)
				if _, dup := seen[key]; dup {
					fail("date", fmt.Sprintf("Duplicate record for student %s on %s", studentID, timeutil.FormatDateStr(d)))
					result.Statistics.DuplicateRecords++
				} else {
					seen[key] = struct{}{}
				}
			}
			if timeutil.DaysBetween(d, today) > editWindowDays {
				warn("date", "Date is more than 30 days old and may require admin approval")
			}
		}

		if !rec.Status.IsValid() {
			fail("status", fmt.Sprintf("Invalid attendance status: %s", rec.Status))
		}

		if v, ok := rec.Metadata[MetadataNotes]; ok && v != nil {
			if _, isString := v.(string); !isString {
				warn("metadata.notes", "Notes should be a string")
			}
		}
		if v, ok := rec.Metadata[MetadataReason]; ok && v != nil {
			if _, isString := v.(string); !isString {
				warn("metadata.reason", "Reason should be a string")
			}
		}

		if !hasError {
			result.Statistics.ValidRecords++
		}
	}

	result.Statistics.InvalidRecords = result.Statistics.TotalRecords - result.Statistics.ValidRecords
	result.Valid = len(result.Errors) == 0
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// PREPARATION AND BATCHING
// ══════════════════════════════════════════════════════════════════════════════

// PrepareBulkData stamps records with cohort and author. It does not
// validate.
func PrepareBulkData(records []BulkRecord, cohortID, userID string) []PreparedRecord {
	prepared := make([]PreparedRecord, len(records))
	for i, r := range records {
		source := r.Source
		if source == "" {
			source = SourceManual
		}
		prepared[i] = PreparedRecord{
			StudentID: r.StudentID,
			CohortID:  cohortID,
			Date:      timeutil.DateOnly(r.Date),
			Status:    r.Status,
			Source:    source,
			CreatedBy: userID,
			Metadata:  r.Metadata,
		}
	}
	return prepared
}

// GenerateBulkTemplate produces one system record per student per day in
// [start, end], students in input order and dates ascending within each
// student.
func GenerateBulkTemplate(studentIDs []string, start, end time.Time, opts TemplateOptions) []BulkRecord {
	status := opts.DefaultStatus
	if status == "" {
		status = StatusPresent
	}

	var days []time.Time
	if opts.IncludeWeekends {
		for d := timeutil.DateOnly(start); !d.After(timeutil.DateOnly(end)); d = d.AddDate(0, 0, 1) {
			days = append(days, d)
		}
	} else {
		days = WorkingDaysBetween(start, end)
	}

	template := make([]BulkRecord, 0, len(studentIDs)*len(days))
	for _, id := range studentIDs {
		for _, d := range days {
			template = append(template, BulkRecord{
				StudentID: id,
				Date:      d,
				Status:    status,
				Source:    SourceSystem,
			})
		}
	}
	return template
}

// CreateBatches splits items into contiguous chunks of at most size,
// preserving order.
func CreateBatches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		batches = append(batches, items[i:end:end])
	}
	return batches
}

// MergeBulkResults combines per-batch results. Counts are summed and issues
// concatenated in order. Duration is the longest batch, since batches may run
// concurrently, and throughput is recomputed from the merged totals.
func MergeBulkResults(results []BulkOperationResult) BulkOperationResult {
	merged := BulkOperationResult{
		Success:  true,
		Errors:   make([]OperationIssue, 0),
		Warnings: make([]OperationIssue, 0),
	}
	for _, r := range results {
		merged.Success = merged.Success && r.Success
		merged.TotalProcessed += r.TotalProcessed
		merged.Created += r.Created
		merged.Updated += r.Updated
		merged.Skipped += r.Skipped
		merged.Failed += r.Failed
		merged.Errors = append(merged.Errors, r.Errors...)
		merged.Warnings = append(merged.Warnings, r.Warnings...)
		merged.Summary.Duration = max(merged.Summary.Duration, r.Summary.Duration)
	}
	merged.Summary.RecordsPerSecond = RecordsPerSecond(merged.TotalProcessed, merged.Summary.Duration)
	return merged
}

// RecordsPerSecond is the throughput of n records over d, rounded to two
// decimals. A zero duration yields 0.
func RecordsPerSecond(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return round2(float64(n) / d.Seconds())
}

// EstimateBulkPerformance sizes a bulk write. The recommended batch size
// depends on recordCount alone; batchSize is accepted for call compatibility
// but does not influence the recommendation.
func EstimateBulkPerformance(recordCount, batchSize, throughput int) PerformanceEstimate {
	if throughput <= 0 {
		throughput = DefaultThroughput
	}

	recommended := 50
	switch {
	case recordCount > 10000:
		recommended = 200
	case recordCount > 1000:
		recommended = 100
	}

	return PerformanceEstimate{
		EstimatedDuration:    float64(recordCount) / float64(throughput),
		RecommendedBatchSize: recommended,
		TotalBatches:         int(math.Ceil(float64(recordCount) / float64(recommended))),
		EstimatedMemoryUsage: recordCount * bytesPerRecord,
	}
}

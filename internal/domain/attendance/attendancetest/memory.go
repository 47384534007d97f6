// Package attendancetest provides in-memory implementations of the attendance
// ports for tests.
package attendancetest

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// Repository is an in-memory attendance.Repository and
// attendance.ImportRunRepository.
type Repository struct {
	mu sync.Mutex

	Cohorts    map[string]attendance.Cohort
	Students   map[string][]attendance.Student
	Records    map[string]attendance.PreparedRecord // key: studentID|date
	ImportRuns []attendance.ImportRun

	// SaveBatchErrors are returned by successive SaveBatch calls before any
	// write happens. A nil entry lets that call through.
	SaveBatchErrors []error

	SaveBatchCalls int
	GetCohortCalls int
	nextID         int
}

var (
	_ attendance.Repository          = (*Repository)(nil)
	_ attendance.ImportRunRepository = (*Repository)(nil)
)

// NewRepository returns an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		Cohorts:  make(map[string]attendance.Cohort),
		Students: make(map[string][]attendance.Student),
		Records:  make(map[string]attendance.PreparedRecord),
	}
}

// AddCohort registers a cohort with its students.
func (r *Repository) AddCohort(c attendance.Cohort, students ...attendance.Student) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cohorts[c.ID] = c
	r.Students[c.ID] = append(r.Students[c.ID], students...)
}

// AddRecord stores a record directly, bypassing SaveBatch.
func (r *Repository) AddRecord(cohortID, studentID string, date time.Time, status attendance.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Records[recordKey(studentID, date)] = attendance.PreparedRecord{
		StudentID: studentID,
		CohortID:  cohortID,
		Date:      timeutil.DateOnly(date),
		Status:    status,
		Source:    attendance.SourceManual,
	}
}

// Record returns the stored record for a student and date.
func (r *Repository) Record(studentID string, date time.Time) (attendance.PreparedRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.Records[recordKey(studentID, date)]
	return rec, ok
}

func recordKey(studentID string, date time.Time) string {
	return studentID + "|" + timeutil.FormatDateStr(date)
}

func (r *Repository) GetCohort(_ context.Context, cohortID string) (*attendance.Cohort, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.GetCohortCalls++
	c, ok := r.Cohorts[cohortID]
	if !ok {
		return nil, shared.ErrCohortNotFound
	}
	return &c, nil
}

func (r *Repository) ListStudents(_ context.Context, cohortID string) ([]attendance.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	students := append([]attendance.Student{}, r.Students[cohortID]...)
	sort.SliceStable(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func (r *Repository) ListRecords(_ context.Context, cohortID string, from, to time.Time) ([]attendance.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, to = timeutil.DateOnly(from), timeutil.DateOnly(to)
	records := make([]attendance.Record, 0)
	for key, rec := range r.Records {
		if rec.CohortID != cohortID || rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		records = append(records, attendance.Record{ID: key, Date: rec.Date, Status: rec.Status, StudentID: rec.StudentID})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].StudentID != records[j].StudentID {
			return records[i].StudentID < records[j].StudentID
		}
		return records[i].Date.Before(records[j].Date)
	})
	return records, nil
}

func (r *Repository) SaveBatch(_ context.Context, rows []attendance.PreparedRecord) (attendance.BulkOperationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := r.SaveBatchCalls
	r.SaveBatchCalls++
	if call < len(r.SaveBatchErrors) && r.SaveBatchErrors[call] != nil {
		return attendance.BulkOperationResult{}, r.SaveBatchErrors[call]
	}

	result := attendance.BulkOperationResult{
		Success:  true,
		Errors:   []attendance.OperationIssue{},
		Warnings: []attendance.OperationIssue{},
	}
	for _, row := range rows {
		key := recordKey(row.StudentID, row.Date)
		existing, ok := r.Records[key]
		switch {
		case !ok:
			result.Created++
		case existing.Status == row.Status:
			result.Skipped++
			continue
		default:
			result.Updated++
		}
		row.Date = timeutil.DateOnly(row.Date)
		r.Records[key] = row
	}
	result.TotalProcessed = len(rows)
	return result, nil
}

func (r *Repository) HasImportRun(_ context.Context, cohortID, fingerprint string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.ImportRuns {
		if run.CohortID == cohortID && run.Fingerprint == fingerprint {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) SaveImportRun(_ context.Context, run attendance.ImportRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.ImportRuns {
		if existing.CohortID == run.CohortID && existing.Fingerprint == run.Fingerprint {
			return shared.ErrImportAlreadyApplied
		}
	}
	r.nextID++
	if run.ID == "" {
		run.ID = "run-" + strconv.Itoa(r.nextID)
	}
	r.ImportRuns = append(r.ImportRuns, run)
	return nil
}

// Cache is an in-memory attendance.ReportCache. TTLs are recorded, not
// enforced.
type Cache struct {
	mu      sync.Mutex
	Reports map[string]*attendance.CohortReport
	TTLs    map[string]time.Duration

	Hits          int
	Invalidations []string
}

var _ attendance.ReportCache = (*Cache)(nil)

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{
		Reports: make(map[string]*attendance.CohortReport),
		TTLs:    make(map[string]time.Duration),
	}
}

func (c *Cache) GetCohortReport(_ context.Context, key string) (*attendance.CohortReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	report, ok := c.Reports[key]
	if !ok {
		return nil, nil
	}
	c.Hits++
	return report, nil
}

func (c *Cache) SetCohortReport(_ context.Context, key string, report *attendance.CohortReport, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Reports[key] = report
	c.TTLs[key] = ttl
	return nil
}

func (c *Cache) InvalidateCohort(_ context.Context, cohortID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Invalidations = append(c.Invalidations, cohortID)
	for key := range c.Reports {
		if strings.HasPrefix(key, cohortID+":") {
			delete(c.Reports, key)
		}
	}
	return nil
}

// Len returns the number of cached reports.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Reports)
}

package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M-RBR/codac-25-sub000/config"
	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance/attendancetest"
	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// Friday of the first cohort week.
var commandNow = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)

func jan(d int) time.Time { return timeutil.Date(2024, time.January, d) }

func newRepo() *attendancetest.Repository {
	repo := attendancetest.NewRepository()
	repo.AddCohort(
		attendance.Cohort{ID: "c1", Name: "Web Dev 24", StartDate: jan(1)},
		attendance.Student{ID: "s1", Name: "Alice"},
		attendance.Student{ID: "s2", Name: "Bob"},
	)
	return repo
}

type flags map[string]bool

func (f flags) IsEnabled(name string, _ *config.FeatureContext) bool { return f[name] }

type fakeLock struct {
	held     bool
	acquired []string
	released []string
}

func (l *fakeLock) Acquire(_ context.Context, cohortID, token string) (bool, error) {
	if l.held {
		return false, nil
	}
	l.acquired = append(l.acquired, cohortID+"/"+token)
	return true, nil
}

func (l *fakeLock) Release(_ context.Context, cohortID, token string) error {
	l.released = append(l.released, cohortID+"/"+token)
	return nil
}

var fastWrites = WriteConfig{BatchSize: 100, BatchRetries: 2, RetryDelay: time.Millisecond}

func transient(msg string) error {
	return shared.NewDomainError("postgres", "SaveBatch", shared.ErrServiceUnavailable, msg)
}

const importCSV = `Student ID,Student Name,Date,Status,Code
s1,Alice,2024-01-02,Present,P
s2,Bob,2024-01-02,Absent (Sick),S
`

// ─────────────────────────────────────────────────────────────────────────────
// Fingerprint
// ─────────────────────────────────────────────────────────────────────────────

func TestFingerprint(t *testing.T) {
	fp := Fingerprint(importCSV)

	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint(strings.ReplaceAll(importCSV, "\n", "\r\n")))
	assert.Equal(t, fp, Fingerprint("\n  "+importCSV+"\n\n"))
	assert.NotEqual(t, fp, Fingerprint(strings.Replace(importCSV, "P\n", "U\n", 1)))
}

// ─────────────────────────────────────────────────────────────────────────────
// Batch writer
// ─────────────────────────────────────────────────────────────────────────────

func prepared(n int) []attendance.PreparedRecord {
	rows := make([]attendance.PreparedRecord, n)
	for i := range rows {
		rows[i] = attendance.PreparedRecord{
			StudentID: "s1",
			CohortID:  "c1",
			Date:      jan(1 + i),
			Status:    attendance.StatusPresent,
			Source:    attendance.SourceManual,
			CreatedBy: "ops",
		}
	}
	return rows
}

func TestBatchWriter_RetriesTransientFailures(t *testing.T) {
	repo := newRepo()
	repo.SaveBatchErrors = []error{transient("connection reset")}
	w := NewBatchWriter(repo, nil, WriteConfig{BatchSize: 1, BatchRetries: 2, RetryDelay: time.Millisecond})

	result := w.Write(context.Background(), prepared(2))

	assert.True(t, result.Success)
	assert.Equal(t, 3, repo.SaveBatchCalls)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 2, result.TotalProcessed)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Errors)
}

func TestBatchWriter_PermanentFailureFailsOnlyThatBatch(t *testing.T) {
	repo := newRepo()
	repo.SaveBatchErrors = []error{errors.New("check constraint violated")}
	w := NewBatchWriter(repo, nil, WriteConfig{BatchSize: 2, BatchRetries: 2, RetryDelay: time.Millisecond})

	result := w.Write(context.Background(), prepared(3))

	assert.False(t, result.Success)
	assert.Equal(t, 2, repo.SaveBatchCalls)
	assert.Equal(t, 3, result.TotalProcessed)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 0, result.Errors[0].Index)
	assert.Equal(t, "Batch 1 failed: check constraint violated", result.Errors[0].Message)
}

func TestBatchWriter_GivesUpAfterRetries(t *testing.T) {
	repo := newRepo()
	repo.SaveBatchErrors = []error{transient("a"), transient("b"), transient("c")}
	w := NewBatchWriter(repo, nil, WriteConfig{BatchSize: 10, BatchRetries: 2, RetryDelay: time.Millisecond})

	result := w.Write(context.Background(), prepared(2))

	assert.Equal(t, 3, repo.SaveBatchCalls)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "Batch 1 failed:")
}

// ─────────────────────────────────────────────────────────────────────────────
// Import
// ─────────────────────────────────────────────────────────────────────────────

func newImportHandler(repo *attendancetest.Repository, cache attendance.ReportCache, lock WriteLock, features Features) *ImportAttendanceHandler {
	return NewImportAttendanceHandler(repo, repo, cache, lock, features, timeutil.Fixed(commandNow), nil, fastWrites)
}

func TestImportAttendance_AppliesRows(t *testing.T) {
	repo := newRepo()
	cache := attendancetest.NewCache()
	require.NoError(t, cache.SetCohortReport(context.Background(), "c1:old", &attendance.CohortReport{}, time.Minute))
	lock := &fakeLock{}
	h := newImportHandler(repo, cache, lock, flags{config.FeatureImportFingerprint: true})

	result, err := h.Handle(context.Background(), ImportAttendanceCommand{CohortID: "c1", CSV: importCSV, Operator: "ops"})
	require.NoError(t, err)

	require.NotNil(t, result.Write)
	assert.Equal(t, 2, result.ParsedRows)
	assert.Equal(t, 2, result.Write.Created)
	assert.True(t, result.ImportRunRecorded)

	rec, ok := repo.Record("s2", jan(2))
	require.True(t, ok)
	assert.Equal(t, attendance.StatusAbsentSick, rec.Status)
	assert.Equal(t, attendance.SourceImport, rec.Source)
	assert.Equal(t, "ops", rec.CreatedBy)

	require.Len(t, repo.ImportRuns, 1)
	assert.Equal(t, result.Fingerprint, repo.ImportRuns[0].Fingerprint)
	assert.Equal(t, 2, repo.ImportRuns[0].RecordCount)

	assert.Equal(t, []string{"c1"}, cache.Invalidations)
	assert.Zero(t, cache.Len())
	assert.Len(t, lock.acquired, 1)
	assert.Equal(t, lock.acquired, lock.released)
}

func TestImportAttendance_RejectsRepeatedPayload(t *testing.T) {
	repo := newRepo()
	h := newImportHandler(repo, nil, nil, flags{config.FeatureImportFingerprint: true})

	_, err := h.Handle(context.Background(), ImportAttendanceCommand{CohortID: "c1", CSV: importCSV, Operator: "ops"})
	require.NoError(t, err)

	crlf := strings.ReplaceAll(importCSV, "\n", "\r\n")
	_, err = h.Handle(context.Background(), ImportAttendanceCommand{CohortID: "c1", CSV: crlf, Operator: "ops"})
	assert.ErrorIs(t, err, shared.ErrImportAlreadyApplied)
	assert.Equal(t, 1, repo.SaveBatchCalls)
}

func TestImportAttendance_WithoutFingerprintFlag(t *testing.T) {
	repo := newRepo()
	h := newImportHandler(repo, nil, nil, nil)

	for i := 0; i < 2; i++ {
		result, err := h.Handle(context.Background(), ImportAttendanceCommand{CohortID: "c1", CSV: importCSV, Operator: "ops"})
		require.NoError(t, err)
		assert.False(t, result.ImportRunRecorded)
	}

	assert.Empty(t, repo.ImportRuns)
	assert.Equal(t, 2, repo.SaveBatchCalls)
}

func TestImportAttendance_DryRun(t *testing.T) {
	repo := newRepo()
	h := newImportHandler(repo, nil, nil, flags{config.FeatureImportFingerprint: true})

	result, err := h.Handle(context.Background(), ImportAttendanceCommand{CohortID: "c1", CSV: importCSV, Operator: "ops", DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Nil(t, result.Write)
	assert.True(t, result.BulkValidation.Valid)
	assert.Zero(t, repo.SaveBatchCalls)
	assert.Empty(t, repo.ImportRuns)
}

func TestImportAttendance_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		csv   string
		check func(t *testing.T, r *ImportAttendanceResult)
	}{
		{
			name: "unparseable status code",
			csv:  "Student ID,Student Name,Date,Status,Code\ns1,Alice,2024-01-02,Present,X\n",
			check: func(t *testing.T, r *ImportAttendanceResult) {
				assert.Equal(t, []string{"Line 2: Invalid status code: X"}, r.ParseErrors)
			},
		},
		{
			name: "future date",
			csv:  "s1,Alice,2024-01-08,Present,P\n",
			check: func(t *testing.T, r *ImportAttendanceResult) {
				require.NotNil(t, r.ImportValidation)
				assert.Contains(t, r.ImportValidation.Errors, "Row 1: Cannot import attendance for future date 2024-01-08")
			},
		},
		{
			name: "student not enrolled",
			csv:  "s9,Mallory,2024-01-03,Present,P\n",
			check: func(t *testing.T, r *ImportAttendanceResult) {
				require.NotNil(t, r.BulkValidation)
				require.Len(t, r.BulkValidation.Errors, 1)
				assert.Equal(t, "Student s9 is not enrolled in this cohort", r.BulkValidation.Errors[0].Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepo()
			h := newImportHandler(repo, nil, nil, nil)

			result, err := h.Handle(context.Background(), ImportAttendanceCommand{CohortID: "c1", CSV: tt.csv, Operator: "ops"})
			assert.ErrorIs(t, err, shared.ErrImportInvalid)
			assert.True(t, shared.IsValidation(err))
			require.NotNil(t, result)
			tt.check(t, result)
			assert.Zero(t, repo.SaveBatchCalls)
		})
	}
}

func TestImportAttendance_CommandErrors(t *testing.T) {
	h := newImportHandler(newRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := h.Handle(ctx, ImportAttendanceCommand{CohortID: "c1", CSV: "  \n", Operator: "ops"})
	assert.ErrorIs(t, err, shared.ErrEmptyCSV)

	_, err = h.Handle(ctx, ImportAttendanceCommand{CohortID: "c1", CSV: importCSV})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, ImportAttendanceCommand{CohortID: "missing", CSV: importCSV, Operator: "ops"})
	assert.ErrorIs(t, err, shared.ErrCohortNotFound)
}

func TestImportAttendance_NoStudents(t *testing.T) {
	repo := attendancetest.NewRepository()
	repo.AddCohort(attendance.Cohort{ID: "empty", Name: "Empty", StartDate: jan(1)})
	h := newImportHandler(repo, nil, nil, nil)

	_, err := h.Handle(context.Background(), ImportAttendanceCommand{CohortID: "empty", CSV: importCSV, Operator: "ops"})
	assert.ErrorIs(t, err, shared.ErrNoStudents)
}

func TestImportAttendance_LockHeld(t *testing.T) {
	repo := newRepo()
	h := newImportHandler(repo, nil, &fakeLock{held: true}, nil)

	result, err := h.Handle(context.Background(), ImportAttendanceCommand{CohortID: "c1", CSV: importCSV, Operator: "ops"})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.Nil(t, result.Write)
	assert.Zero(t, repo.SaveBatchCalls)
}

func TestImportAttendance_BatchFailure(t *testing.T) {
	repo := newRepo()
	repo.SaveBatchErrors = []error{errors.New("disk full")}
	h := newImportHandler(repo, nil, nil, flags{config.FeatureImportFingerprint: true})

	result, err := h.Handle(context.Background(), ImportAttendanceCommand{CohortID: "c1", CSV: importCSV, Operator: "ops"})
	assert.ErrorIs(t, err, shared.ErrBatchWriteFailed)
	require.NotNil(t, result.Write)
	assert.Equal(t, 2, result.Write.Failed)
	assert.False(t, result.ImportRunRecorded)
	assert.Empty(t, repo.ImportRuns)
}

// ─────────────────────────────────────────────────────────────────────────────
// Backfill
// ─────────────────────────────────────────────────────────────────────────────

func TestBackfillMissing_FillsGaps(t *testing.T) {
	repo := newRepo()
	for d := 1; d <= 5; d++ {
		repo.AddRecord("c1", "s1", jan(d), attendance.StatusPresent)
	}
	repo.AddRecord("c1", "s2", jan(1), attendance.StatusAbsentSick)
	repo.AddRecord("c1", "s2", jan(2), attendance.StatusPresent)
	cache := attendancetest.NewCache()
	h := NewBackfillMissingHandler(repo, cache, nil, timeutil.Fixed(commandNow), nil, fastWrites)

	result, err := h.Handle(context.Background(), BackfillMissingCommand{CohortID: "c1", Status: attendance.StatusAbsentUnexcused, Operator: "ops"})
	require.NoError(t, err)

	assert.Equal(t, 70.0, result.Completion.CompletionRate)
	require.Len(t, result.Records, 3)
	assert.Equal(t, jan(3), result.Records[0].Date)
	require.NotNil(t, result.Write)
	assert.Equal(t, 3, result.Write.Created)

	rec, ok := repo.Record("s2", jan(4))
	require.True(t, ok)
	assert.Equal(t, attendance.StatusAbsentUnexcused, rec.Status)
	assert.Equal(t, attendance.SourceSystem, rec.Source)
	assert.Equal(t, attendance.BackfillReason, rec.Metadata[attendance.MetadataReason])
	assert.Equal(t, []string{"c1"}, cache.Invalidations)

	again, err := h.Handle(context.Background(), BackfillMissingCommand{CohortID: "c1", Operator: "ops"})
	require.NoError(t, err)
	assert.Empty(t, again.Records)
	assert.Nil(t, again.Write)
	assert.Equal(t, 100.0, again.Completion.CompletionRate)
}

func TestBackfillMissing_DryRunAndValidation(t *testing.T) {
	repo := newRepo()
	h := NewBackfillMissingHandler(repo, nil, nil, timeutil.Fixed(commandNow), nil, fastWrites)

	result, err := h.Handle(context.Background(), BackfillMissingCommand{CohortID: "c1", Operator: "ops", DryRun: true})
	require.NoError(t, err)
	assert.Len(t, result.Records, 10)
	assert.Equal(t, attendance.StatusPresent, result.Records[0].Status)
	assert.Nil(t, result.Write)
	assert.Zero(t, repo.SaveBatchCalls)

	_, err = h.Handle(context.Background(), BackfillMissingCommand{CohortID: "c1", Operator: "ops", Status: "LATE"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

// ─────────────────────────────────────────────────────────────────────────────
// Template
// ─────────────────────────────────────────────────────────────────────────────

func TestGenerateTemplate_Defaults(t *testing.T) {
	h := NewGenerateTemplateHandler(newRepo(), nil, timeutil.Fixed(commandNow), nil)

	result, err := h.Handle(context.Background(), GenerateTemplateCommand{CohortID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, jan(1), result.Start)
	assert.Equal(t, jan(5), result.End)
	assert.Len(t, result.Records, 10)

	lines := strings.Split(strings.TrimSpace(result.CSV), "\n")
	require.Len(t, lines, 12)
	assert.Equal(t, "Attendance Details", lines[0])
	assert.Equal(t, `"s1","Alice","2024-01-01","Present","P"`, lines[2])
	assert.Equal(t, `"s2","Bob","2024-01-05","Present","P"`, lines[11])
}

func TestGenerateTemplate_Weekends(t *testing.T) {
	h := NewGenerateTemplateHandler(newRepo(), flags{config.FeatureWeekendTemplate: true}, timeutil.Fixed(commandNow), nil)
	end := jan(7)

	result, err := h.Handle(context.Background(), GenerateTemplateCommand{CohortID: "c1", EndDate: &end})
	require.NoError(t, err)
	assert.Len(t, result.Records, 14)

	off := false
	result, err = h.Handle(context.Background(), GenerateTemplateCommand{CohortID: "c1", EndDate: &end, IncludeWeekends: &off})
	require.NoError(t, err)
	assert.Len(t, result.Records, 10)
}

func TestGenerateTemplate_Errors(t *testing.T) {
	h := NewGenerateTemplateHandler(newRepo(), nil, timeutil.Fixed(commandNow), nil)
	start, end := jan(4), jan(2)

	_, err := h.Handle(context.Background(), GenerateTemplateCommand{CohortID: "c1", StartDate: &start, EndDate: &end})
	assert.ErrorIs(t, err, shared.ErrInvalidDate)

	_, err = h.Handle(context.Background(), GenerateTemplateCommand{})
	assert.True(t, shared.IsValidation(err))
}

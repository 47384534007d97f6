package query

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M-RBR/codac-25-sub000/config"
	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance/attendancetest"
	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
	"github.com/M-RBR/codac-25-sub000/internal/infrastructure/export"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// Friday of the first cohort week: five working days so far.
var queryNow = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)

func jan(d int) time.Time { return timeutil.Date(2024, time.January, d) }

// Alice is present every day. Bob is present once, sick once and has three
// unrecorded days.
func seededRepo() *attendancetest.Repository {
	repo := attendancetest.NewRepository()
	repo.AddCohort(
		attendance.Cohort{ID: "c1", Name: "Web Dev 24", StartDate: jan(1)},
		attendance.Student{ID: "s2", Name: "Bob"},
		attendance.Student{ID: "s1", Name: "Alice"},
	)
	for d := 1; d <= 5; d++ {
		repo.AddRecord("c1", "s1", jan(d), attendance.StatusPresent)
	}
	repo.AddRecord("c1", "s2", jan(1), attendance.StatusPresent)
	repo.AddRecord("c1", "s2", jan(2), attendance.StatusAbsentSick)
	return repo
}

type flags map[string]bool

func (f flags) IsEnabled(name string, _ *config.FeatureContext) bool { return f[name] }

func newReportHandler(repo attendance.Repository, cache attendance.ReportCache, features Features) *GetCohortAttendanceHandler {
	return NewGetCohortAttendanceHandler(repo, cache, features, timeutil.Fixed(queryNow), nil, GetCohortAttendanceConfig{})
}

func TestGetCohortAttendance_BuildsReadModels(t *testing.T) {
	h := newReportHandler(seededRepo(), nil, nil)

	report, err := h.Handle(context.Background(), GetCohortAttendanceQuery{CohortID: "c1"})
	require.NoError(t, err)

	require.Len(t, report.Students, 2)
	alice, bob := report.Students[0], report.Students[1]

	assert.Equal(t, "Alice", alice.StudentName)
	assert.Equal(t, 5, alice.Statistics.TotalDays)
	assert.Equal(t, 100.0, alice.Statistics.AttendanceRate)
	assert.Equal(t, attendance.RiskLow, alice.RiskLevel)

	assert.Equal(t, "Bob", bob.StudentName)
	assert.Equal(t, 1, bob.Statistics.PresentDays)
	assert.Equal(t, 1, bob.Statistics.AbsentSickDays)
	assert.Equal(t, 3, bob.Statistics.UnrecordedDays)
	assert.Equal(t, 20.0, bob.Statistics.AttendanceRate)
	assert.Equal(t, attendance.RiskHigh, bob.RiskLevel)

	assert.Equal(t, 2, report.Cohort.TotalStudents)
	assert.Equal(t, 10, report.Cohort.Statistics.TotalDays)
	assert.Equal(t, 60.0, report.Cohort.Statistics.AttendanceRate)
	assert.Equal(t, queryNow, report.GeneratedAt)
}

func TestGetCohortAttendance_UsesCacheWhenEnabled(t *testing.T) {
	repo := seededRepo()
	cache := attendancetest.NewCache()
	h := newReportHandler(repo, cache, flags{config.FeatureStatsCache: true})

	first, err := h.Handle(context.Background(), GetCohortAttendanceQuery{CohortID: "c1"})
	require.NoError(t, err)
	second, err := h.Handle(context.Background(), GetCohortAttendanceQuery{CohortID: "c1"})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, repo.GetCohortCalls)
	assert.Equal(t, 1, cache.Hits)
	assert.Equal(t, 10*time.Minute, cache.TTLs["c1:2024-01-05:w14"])

	_, err = h.Handle(context.Background(), GetCohortAttendanceQuery{CohortID: "c1", Refresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.GetCohortCalls)
}

func TestGetCohortAttendance_CacheDisabledByFlag(t *testing.T) {
	repo := seededRepo()
	cache := attendancetest.NewCache()
	h := newReportHandler(repo, cache, flags{})

	for i := 0; i < 2; i++ {
		_, err := h.Handle(context.Background(), GetCohortAttendanceQuery{CohortID: "c1"})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, repo.GetCohortCalls)
	assert.Zero(t, cache.Len())
}

func TestGetCohortAttendance_Errors(t *testing.T) {
	h := newReportHandler(seededRepo(), nil, nil)

	_, err := h.Handle(context.Background(), GetCohortAttendanceQuery{})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), GetCohortAttendanceQuery{CohortID: "nope"})
	assert.ErrorIs(t, err, shared.ErrCohortNotFound)
	assert.True(t, shared.IsNotFound(err))
}

func TestGetCohortAttendance_CohortNotStarted(t *testing.T) {
	repo := attendancetest.NewRepository()
	repo.AddCohort(attendance.Cohort{ID: "c2", Name: "Later", StartDate: jan(15)},
		attendance.Student{ID: "s1", Name: "Alice"})
	h := newReportHandler(repo, nil, nil)

	report, err := h.Handle(context.Background(), GetCohortAttendanceQuery{CohortID: "c2"})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Students[0].Statistics.TotalDays)
	assert.Equal(t, 0.0, report.Cohort.Statistics.AttendanceRate)
}

func TestGetCompletionReport(t *testing.T) {
	h := NewGetCompletionReportHandler(seededRepo(), timeutil.Fixed(queryNow), nil)

	res, err := h.Handle(context.Background(), GetCompletionReportQuery{CohortID: "c1"})
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, "Web Dev 24", res.Cohort.Name)
	assert.Equal(t, 5, r.TotalWorkingDays)
	assert.Equal(t, 2, r.TotalStudents)
	assert.Equal(t, 10, r.ExpectedRecords)
	assert.Equal(t, 7, r.ExistingRecords)
	assert.Equal(t, 70.0, r.CompletionRate)
	assert.Equal(t, []time.Time{jan(3), jan(4), jan(5)}, r.MissingByStudent()["s2"])
	assert.NotContains(t, r.MissingByStudent(), "s1")
}

func TestExportAttendance_Formats(t *testing.T) {
	reports := newReportHandler(seededRepo(), nil, nil)
	h := NewExportAttendanceHandler(reports, timeutil.Fixed(queryNow), nil)

	csvOut, err := h.Handle(context.Background(), ExportAttendanceQuery{CohortID: "c1", Format: export.FormatCSV, IncludeStatistics: true})
	require.NoError(t, err)
	assert.Equal(t, "attendance-c1-2024-01-05.csv", csvOut.Filename)
	assert.True(t, strings.HasPrefix(csvOut.Content, "# Attendance Export\n"))
	assert.Contains(t, csvOut.Content, "Cohort Statistics\n")
	assert.Equal(t, 7, csvOut.Data.Metadata.TotalRecords)

	jsonOut, err := h.Handle(context.Background(), ExportAttendanceQuery{CohortID: "c1", Format: export.FormatJSON})
	require.NoError(t, err)
	var decoded export.Data
	require.NoError(t, json.Unmarshal([]byte(jsonOut.Content), &decoded))
	assert.Len(t, decoded.Students, 2)
	assert.Nil(t, decoded.Statistics)

	summary, err := h.Handle(context.Background(), ExportAttendanceQuery{CohortID: "c1", Format: export.FormatSummary})
	require.NoError(t, err)
	assert.Equal(t, "attendance-c1-2024-01-05.txt", summary.Filename)
	assert.True(t, strings.HasPrefix(summary.Content, "ATTENDANCE SUMMARY REPORT\n"))
}

func TestExportAttendance_RangeAndValidation(t *testing.T) {
	reports := newReportHandler(seededRepo(), nil, nil)
	h := NewExportAttendanceHandler(reports, timeutil.Fixed(queryNow), nil)

	from, to := jan(2), jan(3)
	out, err := h.Handle(context.Background(), ExportAttendanceQuery{CohortID: "c1", Format: export.FormatCSV, StartDate: &from, EndDate: &to})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Data.Metadata.TotalRecords)

	_, err = h.Handle(context.Background(), ExportAttendanceQuery{CohortID: "c1", Format: "xml"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), ExportAttendanceQuery{CohortID: "c1", Format: export.FormatCSV, StartDate: &to, EndDate: &from})
	assert.ErrorIs(t, err, shared.ErrInvalidDate)
}

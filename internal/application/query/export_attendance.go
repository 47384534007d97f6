package query

import (
	"context"
	"fmt"
	"time"

	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
	"github.com/M-RBR/codac-25-sub000/internal/infrastructure/export"
	"github.com/M-RBR/codac-25-sub000/pkg/logger"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT ATTENDANCE QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ExportAttendanceQuery renders a cohort's attendance as CSV, JSON or a text
// summary.
type ExportAttendanceQuery struct {
	CohortID string        `validate:"required"`
	Format   export.Format `validate:"required,oneof=csv json summary"`

	// Inclusive. Defaults to the cohort period.
	StartDate *time.Time
	EndDate   *time.Time

	IncludeStatistics bool
}

// Validate checks the query.
func (q ExportAttendanceQuery) Validate() error {
	if err := validateQuery("ExportAttendance", q); err != nil {
		return err
	}
	if q.StartDate != nil && q.EndDate != nil && timeutil.After(*q.StartDate, *q.EndDate) {
		return shared.NewDomainError("query", "ExportAttendance", shared.ErrInvalidDate, "start date is after end date")
	}
	return nil
}

// ExportResult is a rendered export.
type ExportResult struct {
	Format   export.Format
	Filename string
	Content  string
	Data     export.Data
}

// ExportAttendanceHandler handles ExportAttendanceQuery on top of the cohort
// report, so exports share its cache.
type ExportAttendanceHandler struct {
	reports *GetCohortAttendanceHandler
	clock   timeutil.Clock
	log     *logger.Logger
}

// NewExportAttendanceHandler creates a new ExportAttendanceHandler.
func NewExportAttendanceHandler(reports *GetCohortAttendanceHandler, clock timeutil.Clock, log *logger.Logger) *ExportAttendanceHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ExportAttendanceHandler{reports: reports, clock: clock, log: log.With(logger.Component("query"))}
}

// Handle renders the export.
func (h *ExportAttendanceHandler) Handle(ctx context.Context, q ExportAttendanceQuery) (*ExportResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	log := h.log.With(logger.Operation("export_attendance"), logger.CohortID(q.CohortID), logger.String("format", string(q.Format)))

	report, err := h.reports.Handle(ctx, GetCohortAttendanceQuery{CohortID: q.CohortID})
	if err != nil {
		return nil, fmt.Errorf("export_attendance: %w", err)
	}

	now := h.clock.Now()
	data := export.PrepareExportData(report.Cohort, report.Students, export.Options{
		StartDate:         q.StartDate,
		EndDate:           q.EndDate,
		IncludeStatistics: q.IncludeStatistics,
	}, now)

	result := &ExportResult{
		Format:   q.Format,
		Filename: exportFilename(q.CohortID, q.Format, now),
		Data:     data,
	}

	switch q.Format {
	case export.FormatCSV:
		result.Content = export.GenerateCSV(data)
	case export.FormatJSON:
		out, err := export.GenerateJSON(data)
		if err != nil {
			return nil, fmt.Errorf("export_attendance: %w", err)
		}
		result.Content = out
	case export.FormatSummary:
		result.Content = export.GenerateSummaryReport(report.Cohort, report.Students)
	}

	log.Info("attendance exported",
		logger.RecordCount(data.Metadata.TotalRecords),
		logger.Int("bytes", len(result.Content)),
	)
	return result, nil
}

// attendance-<cohort>-<yyyy-mm-dd>.<ext>
func exportFilename(cohortID string, format export.Format, now time.Time) string {
	ext := string(format)
	if format == export.FormatSummary {
		ext = "txt"
	}
	return fmt.Sprintf("attendance-%s-%s.%s", cohortID, timeutil.FormatDateStr(now), ext)
}

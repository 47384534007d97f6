package query

import (
	"context"
	"fmt"
	"time"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/pkg/logger"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COMPLETION REPORT QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetCompletionReportQuery asks which working days lack attendance records.
type GetCompletionReportQuery struct {
	CohortID string `validate:"required"`
}

// Validate checks the query.
func (q GetCompletionReportQuery) Validate() error {
	return validateQuery("GetCompletionReport", q)
}

// CompletionReportResult is the completion report with the cohort it covers.
type CompletionReportResult struct {
	Cohort attendance.Cohort           `json:"cohort"`
	Report attendance.CompletionReport `json:"report"`
}

// GetCompletionReportHandler handles GetCompletionReportQuery.
type GetCompletionReportHandler struct {
	repo  attendance.Repository
	clock timeutil.Clock
	log   *logger.Logger
}

// NewGetCompletionReportHandler creates a new GetCompletionReportHandler.
func NewGetCompletionReportHandler(repo attendance.Repository, clock timeutil.Clock, log *logger.Logger) *GetCompletionReportHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetCompletionReportHandler{repo: repo, clock: clock, log: log.With(logger.Component("query"))}
}

// Handle builds the completion report for the cohort's enrolled students.
func (h *GetCompletionReportHandler) Handle(ctx context.Context, q GetCompletionReportQuery) (*CompletionReportResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	now := h.clock.Now()
	log := h.log.With(logger.Operation("get_completion_report"), logger.CohortID(q.CohortID))

	snap, err := loadCohortSnapshot(ctx, h.repo, q.CohortID, now)
	if err != nil {
		log.Error("failed to load cohort", logger.Err(err))
		return nil, fmt.Errorf("get_completion_report: %w", err)
	}

	report := attendance.GenerateCompletionReport(snap.studentIDs(), snap.Cohort.StartDate, snap.Cohort.EndDate, snap.Records, now)

	log.Info("completion report built",
		logger.Float64("completion_rate", report.CompletionRate),
		logger.Int("missing_dates", len(report.OverallMissingDates)),
		logger.Latency(time.Since(started)),
	)
	return &CompletionReportResult{Cohort: *snap.Cohort, Report: report}, nil
}

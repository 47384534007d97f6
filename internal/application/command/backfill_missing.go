package command

import (
	"context"
	"fmt"
	"time"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
	"github.com/M-RBR/codac-25-sub000/pkg/logger"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BACKFILL MISSING COMMAND
// Fills every working day without a record with a default status, through
// the same batched write path as imports.
// ══════════════════════════════════════════════════════════════════════════════

// BackfillMissingCommand contains the data to backfill a cohort.
type BackfillMissingCommand struct {
	CohortID string `validate:"required"`

	// Status written for each gap. Defaults to PRESENT.
	Status attendance.Status

	Operator string `validate:"required"`
	DryRun   bool
}

// Validate validates the command.
func (c BackfillMissingCommand) Validate() error {
	if err := validateCommand("BackfillMissing", c); err != nil {
		return err
	}
	return validateStatus("BackfillMissing", c.Status)
}

// BackfillMissingResult describes the gaps found and what was written.
type BackfillMissingResult struct {
	Completion attendance.CompletionReport     `json:"completion"`
	Records    []attendance.BulkRecord         `json:"records"`
	Validation attendance.BulkValidationResult `json:"validation"`
	Write      *attendance.BulkOperationResult `json:"write,omitempty"`
}

// BackfillMissingHandler handles BackfillMissingCommand.
type BackfillMissingHandler struct {
	repo  attendance.Repository
	clock timeutil.Clock
	log   *logger.Logger
	write cohortWrite
}

// NewBackfillMissingHandler creates a new BackfillMissingHandler.
// cache and lock may be nil.
func NewBackfillMissingHandler(
	repo attendance.Repository,
	cache attendance.ReportCache,
	lock WriteLock,
	clock timeutil.Clock,
	log *logger.Logger,
	config WriteConfig,
) *BackfillMissingHandler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("command"))

	return &BackfillMissingHandler{
		repo:  repo,
		clock: clock,
		log:   log,
		write: cohortWrite{
			writer: NewBatchWriter(repo, log, config),
			lock:   lock,
			cache:  cache,
			log:    log,
		},
	}
}

// Handle backfills the cohort. A cohort without gaps writes nothing.
func (h *BackfillMissingHandler) Handle(ctx context.Context, cmd BackfillMissingCommand) (*BackfillMissingResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	now := h.clock.Now()
	log := h.log.With(logger.Operation("backfill_missing"), logger.CohortID(cmd.CohortID))

	state, err := loadCohortState(ctx, h.repo, cmd.CohortID, now, true)
	if err != nil {
		log.Error("failed to load cohort", logger.Err(err))
		return nil, fmt.Errorf("backfill_missing: %w", err)
	}

	report := attendance.GenerateCompletionReport(state.studentIDs(), state.Cohort.StartDate, state.Cohort.EndDate, state.Records, now)
	records := attendance.CreateMissingTemplate(report.MissingByStudent(), cmd.Status)
	result := &BackfillMissingResult{
		Completion: report,
		Records:    records,
		Validation: attendance.ValidateBulkRecords(records, state.Cohort.StartDate, state.Cohort.EndDate, state.studentIDs(), now),
	}

	if len(records) == 0 {
		log.Info("nothing to backfill", logger.Float64("completion_rate", report.CompletionRate))
		return result, nil
	}
	if !result.Validation.Valid {
		log.Warn("backfill records rejected", logger.Int("errors", len(result.Validation.Errors)))
		return result, shared.NewDomainError("command", "BackfillMissing", shared.ErrValidation,
			"generated backfill records failed validation")
	}
	if cmd.DryRun {
		log.Info("dry run passed", logger.RecordCount(len(records)))
		return result, nil
	}

	prepared := attendance.PrepareBulkData(records, cmd.CohortID, cmd.Operator)
	result.Write, err = h.write.run(ctx, "BackfillMissing", cmd.CohortID, prepared)
	if err != nil {
		log.Error("backfill write failed", logger.Err(err))
		return result, err
	}

	log.Info("backfill applied",
		logger.RecordCount(len(prepared)),
		logger.Int("created", result.Write.Created),
		logger.Latency(time.Since(started)),
	)
	return result, nil
}

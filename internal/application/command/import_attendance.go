package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/M-RBR/codac-25-sub000/config"
	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
	"github.com/M-RBR/codac-25-sub000/internal/infrastructure/export"
	"github.com/M-RBR/codac-25-sub000/pkg/logger"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT ATTENDANCE COMMAND
// Applies a CSV of attendance rows to a cohort. Nothing is written unless
// every row passes both the import checks and the bulk validator.
// ══════════════════════════════════════════════════════════════════════════════

// ImportAttendanceCommand contains the data to import a CSV.
type ImportAttendanceCommand struct {
	CohortID string `validate:"required"`
	CSV      string

	// Operator is recorded as the author of the written rows.
	Operator string `validate:"required"`

	// DryRun validates without writing.
	DryRun bool
}

// Validate validates the command.
func (c ImportAttendanceCommand) Validate() error {
	if err := validateCommand("ImportAttendance", c); err != nil {
		return err
	}
	if strings.TrimSpace(c.CSV) == "" {
		return shared.ErrEmptyCSV
	}
	return nil
}

// ImportAttendanceResult reports every stage the import reached.
type ImportAttendanceResult struct {
	Fingerprint string `json:"fingerprint"`
	DryRun      bool   `json:"dryRun"`

	ParsedRows  int      `json:"parsedRows"`
	ParseErrors []string `json:"parseErrors,omitempty"`

	ImportValidation *export.ImportValidationResult   `json:"importValidation,omitempty"`
	BulkValidation   *attendance.BulkValidationResult `json:"bulkValidation,omitempty"`
	Write            *attendance.BulkOperationResult  `json:"write,omitempty"`

	ImportRunRecorded bool `json:"importRunRecorded"`
}

// ImportAttendanceHandler handles ImportAttendanceCommand.
type ImportAttendanceHandler struct {
	repo     attendance.Repository
	runs     attendance.ImportRunRepository
	features Features
	clock    timeutil.Clock
	log      *logger.Logger
	write    cohortWrite
}

// NewImportAttendanceHandler creates a new ImportAttendanceHandler.
// runs, cache, lock and features may be nil.
func NewImportAttendanceHandler(
	repo attendance.Repository,
	runs attendance.ImportRunRepository,
	cache attendance.ReportCache,
	lock WriteLock,
	features Features,
	clock timeutil.Clock,
	log *logger.Logger,
	config WriteConfig,
) *ImportAttendanceHandler {
	if features == nil {
		features = noFeatures{}
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("command"))

	return &ImportAttendanceHandler{
		repo:     repo,
		runs:     runs,
		features: features,
		clock:    clock,
		log:      log,
		write: cohortWrite{
			writer: NewBatchWriter(repo, log, config),
			lock:   lock,
			cache:  cache,
			log:    log,
		},
	}
}

// Handle runs the import. On validation failure the result describes the
// problems and the error is shared.ErrImportInvalid.
func (h *ImportAttendanceHandler) Handle(ctx context.Context, cmd ImportAttendanceCommand) (*ImportAttendanceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	now := h.clock.Now()
	result := &ImportAttendanceResult{Fingerprint: Fingerprint(cmd.CSV), DryRun: cmd.DryRun}
	log := h.log.With(
		logger.Operation("import_attendance"),
		logger.CohortID(cmd.CohortID),
		logger.Fingerprint(result.Fingerprint),
	)
	log.Info("import started", logger.Bool("dry_run", cmd.DryRun))

	guard := h.runs != nil &&
		h.features.IsEnabled(config.FeatureImportFingerprint, &config.FeatureContext{CohortID: cmd.CohortID})
	if guard {
		applied, err := h.runs.HasImportRun(ctx, cmd.CohortID, result.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("import_attendance: check import runs: %w", err)
		}
		if applied {
			log.Warn("import already applied")
			return result, shared.ErrImportAlreadyApplied
		}
	}

	parsed := export.ParseCSV(cmd.CSV)
	result.ParsedRows = len(parsed.Data)
	if !parsed.Success {
		result.ParseErrors = parsed.Errors
		log.Warn("import CSV could not be parsed", logger.Int("errors", len(parsed.Errors)))
		return result, shared.ErrImportInvalid
	}

	state, err := loadCohortState(ctx, h.repo, cmd.CohortID, now, false)
	if err != nil {
		log.Error("failed to load cohort", logger.Err(err))
		return nil, fmt.Errorf("import_attendance: %w", err)
	}

	importCheck := export.ValidateImportData(parsed.Data, state.Cohort.StartDate, state.Cohort.EndDate, now)
	result.ImportValidation = &importCheck
	if !importCheck.Valid {
		log.Warn("import rows rejected", logger.Int("errors", len(importCheck.Errors)))
		return result, shared.ErrImportInvalid
	}

	records := export.ToBulkRecords(parsed.Data, attendance.SourceImport)
	bulkCheck := attendance.ValidateBulkRecords(records, state.Cohort.StartDate, state.Cohort.EndDate, state.studentIDs(), now)
	result.BulkValidation = &bulkCheck
	if !bulkCheck.Valid {
		log.Warn("import records rejected", logger.Int("errors", len(bulkCheck.Errors)))
		return result, shared.ErrImportInvalid
	}

	if cmd.DryRun {
		log.Info("dry run passed", logger.RecordCount(len(records)))
		return result, nil
	}

	prepared := attendance.PrepareBulkData(records, cmd.CohortID, cmd.Operator)
	write, err := h.write.run(ctx, "ImportAttendance", cmd.CohortID, prepared)
	result.Write = write
	if err != nil {
		log.Error("import write failed", logger.Err(err))
		return result, err
	}

	// Only complete imports are remembered, so a partial one can be re-run.
	if guard {
		run := attendance.ImportRun{
			CohortID:    cmd.CohortID,
			Fingerprint: result.Fingerprint,
			RecordCount: len(prepared),
			CreatedBy:   cmd.Operator,
			CreatedAt:   now,
		}
		if err := h.runs.SaveImportRun(ctx, run); err != nil {
			log.Error("failed to record import run", logger.Err(err))
			return result, fmt.Errorf("import_attendance: record import run: %w", err)
		}
		result.ImportRunRecorded = true
	}

	log.Info("import applied",
		logger.RecordCount(write.TotalProcessed),
		logger.Int("created", write.Created),
		logger.Int("updated", write.Updated),
		logger.Int("skipped", write.Skipped),
		logger.Latency(time.Since(started)),
	)
	return result, nil
}

package command

import (
	"context"
	"fmt"
	"time"

	"github.com/M-RBR/codac-25-sub000/config"
	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
	"github.com/M-RBR/codac-25-sub000/internal/infrastructure/export"
	"github.com/M-RBR/codac-25-sub000/pkg/logger"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE TEMPLATE COMMAND
// Produces a pre-filled attendance sheet for the enrolled students that can
// be edited and imported back.
// ══════════════════════════════════════════════════════════════════════════════

// GenerateTemplateCommand contains the template parameters.
type GenerateTemplateCommand struct {
	CohortID string `validate:"required"`

	// Inclusive. Default to the cohort start and the last day attendance
	// can exist for.
	StartDate *time.Time
	EndDate   *time.Time

	// Defaults to PRESENT.
	Status attendance.Status

	// nil follows the weekend_template feature.
	IncludeWeekends *bool
}

// Validate validates the command.
func (c GenerateTemplateCommand) Validate() error {
	if err := validateCommand("GenerateTemplate", c); err != nil {
		return err
	}
	return validateStatus("GenerateTemplate", c.Status)
}

// GenerateTemplateResult is the template as records and as CSV.
type GenerateTemplateResult struct {
	Cohort  attendance.Cohort       `json:"cohort"`
	Start   time.Time               `json:"start"`
	End     time.Time               `json:"end"`
	Records []attendance.BulkRecord `json:"records"`
	CSV     string                  `json:"-"`
}

// GenerateTemplateHandler handles GenerateTemplateCommand. It reads only.
type GenerateTemplateHandler struct {
	repo     attendance.Repository
	features Features
	clock    timeutil.Clock
	log      *logger.Logger
}

// NewGenerateTemplateHandler creates a new GenerateTemplateHandler.
func NewGenerateTemplateHandler(repo attendance.Repository, features Features, clock timeutil.Clock, log *logger.Logger) *GenerateTemplateHandler {
	if features == nil {
		features = noFeatures{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GenerateTemplateHandler{repo: repo, features: features, clock: clock, log: log.With(logger.Component("command"))}
}

// Handle builds the template.
func (h *GenerateTemplateHandler) Handle(ctx context.Context, cmd GenerateTemplateCommand) (*GenerateTemplateResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := h.clock.Now()
	log := h.log.With(logger.Operation("generate_template"), logger.CohortID(cmd.CohortID))

	state, err := loadCohortState(ctx, h.repo, cmd.CohortID, now, false)
	if err != nil {
		return nil, fmt.Errorf("generate_template: %w", err)
	}

	start := timeutil.DateOnly(state.Cohort.StartDate)
	if cmd.StartDate != nil {
		start = timeutil.DateOnly(*cmd.StartDate)
	}
	end := attendance.AttendanceWindowEnd(state.Cohort.EndDate, now)
	if cmd.EndDate != nil {
		end = timeutil.DateOnly(*cmd.EndDate)
	}
	if start.After(end) {
		return nil, shared.NewDomainError("command", "GenerateTemplate", shared.ErrInvalidDate,
			fmt.Sprintf("template range %s to %s is empty", timeutil.FormatDateStr(start), timeutil.FormatDateStr(end)))
	}

	weekends := h.features.IsEnabled(config.FeatureWeekendTemplate, &config.FeatureContext{CohortID: cmd.CohortID})
	if cmd.IncludeWeekends != nil {
		weekends = *cmd.IncludeWeekends
	}

	records := attendance.GenerateBulkTemplate(state.studentIDs(), start, end, attendance.TemplateOptions{
		DefaultStatus:   cmd.Status,
		IncludeWeekends: weekends,
	})

	log.Info("template generated",
		logger.RecordCount(len(records)),
		logger.Date("start", start),
		logger.Date("end", end),
		logger.Bool("weekends", weekends),
	)
	return &GenerateTemplateResult{
		Cohort:  *state.Cohort,
		Start:   start,
		End:     end,
		Records: records,
		CSV:     export.GenerateTemplateCSV(records, state.studentNames()),
	}, nil
}

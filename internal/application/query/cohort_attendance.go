package query

import (
	"context"
	"fmt"
	"time"

	"github.com/M-RBR/codac-25-sub000/config"
	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/pkg/logger"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COHORT ATTENDANCE QUERY
// Builds the per-student and per-cohort read models: statistics over the
// cohort's working days so far, trend and risk for every enrolled student.
// ══════════════════════════════════════════════════════════════════════════════

// GetCohortAttendanceQuery asks for a cohort's attendance report.
type GetCohortAttendanceQuery struct {
	CohortID string `validate:"required"`

	// Refresh skips the cache read. The fresh report is still cached.
	Refresh bool
}

// Validate checks the query.
func (q GetCohortAttendanceQuery) Validate() error {
	return validateQuery("GetCohortAttendance", q)
}

// GetCohortAttendanceConfig tunes the handler.
type GetCohortAttendanceConfig struct {
	TrendWindow int
	CacheTTL    time.Duration
}

// DefaultGetCohortAttendanceConfig returns default configuration.
func DefaultGetCohortAttendanceConfig() GetCohortAttendanceConfig {
	return GetCohortAttendanceConfig{
		TrendWindow: attendance.DefaultTrendWindow,
		CacheTTL:    10 * time.Minute,
	}
}

// GetCohortAttendanceHandler handles GetCohortAttendanceQuery.
type GetCohortAttendanceHandler struct {
	repo     attendance.Repository
	cache    attendance.ReportCache
	features Features
	clock    timeutil.Clock
	log      *logger.Logger
	config   GetCohortAttendanceConfig
}

// NewGetCohortAttendanceHandler creates a new GetCohortAttendanceHandler.
// cache and features may be nil.
func NewGetCohortAttendanceHandler(
	repo attendance.Repository,
	cache attendance.ReportCache,
	features Features,
	clock timeutil.Clock,
	log *logger.Logger,
	config GetCohortAttendanceConfig,
) *GetCohortAttendanceHandler {
	defaults := DefaultGetCohortAttendanceConfig()
	if config.TrendWindow <= 0 {
		config.TrendWindow = defaults.TrendWindow
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if features == nil {
		features = noFeatures{}
	}
	if log == nil {
		log = logger.Nop()
	}

	return &GetCohortAttendanceHandler{
		repo:     repo,
		cache:    cache,
		features: features,
		clock:    clock,
		log:      log.With(logger.Component("query")),
		config:   config,
	}
}

// Handle returns the cohort report, from cache when the stats_cache feature
// is on for the cohort. Cache failures are logged and never fail the query.
func (h *GetCohortAttendanceHandler) Handle(ctx context.Context, q GetCohortAttendanceQuery) (*attendance.CohortReport, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	now := h.clock.Now()
	log := h.log.With(logger.Operation("get_cohort_attendance"), logger.CohortID(q.CohortID))

	useCache := h.cache != nil &&
		h.features.IsEnabled(config.FeatureStatsCache, &config.FeatureContext{CohortID: q.CohortID})
	key := attendance.ReportCacheKey(q.CohortID,
		fmt.Sprintf("%s:w%d", timeutil.FormatDateStr(now), h.config.TrendWindow))

	if useCache && !q.Refresh {
		report, err := h.cache.GetCohortReport(ctx, key)
		switch {
		case err != nil:
			log.Warn("report cache read failed", logger.Err(err))
		case report != nil:
			log.Debug("report cache hit", logger.Latency(time.Since(started)))
			return report, nil
		}
	}

	report, err := buildCohortReport(ctx, h.repo, q.CohortID, h.config.TrendWindow, now)
	if err != nil {
		log.Error("failed to build cohort report", logger.Err(err))
		return nil, fmt.Errorf("get_cohort_attendance: %w", err)
	}

	if useCache {
		if err := h.cache.SetCohortReport(ctx, key, report, h.config.CacheTTL); err != nil {
			log.Warn("report cache write failed", logger.Err(err))
		}
	}

	log.Info("cohort report built",
		logger.Int("students", len(report.Students)),
		logger.Float64("attendance_rate", report.Cohort.Statistics.AttendanceRate),
		logger.Latency(time.Since(started)),
	)
	return report, nil
}

// cohortSnapshot is everything stored for one cohort up to today.
type cohortSnapshot struct {
	Cohort   *attendance.Cohort
	Students []attendance.Student
	Records  []attendance.Record
	WindowTo time.Time
}

func (s cohortSnapshot) studentIDs() []string {
	ids := make([]string, len(s.Students))
	for i, st := range s.Students {
		ids[i] = st.ID
	}
	return ids
}

func loadCohortSnapshot(ctx context.Context, repo attendance.Repository, cohortID string, now time.Time) (cohortSnapshot, error) {
	cohort, err := repo.GetCohort(ctx, cohortID)
	if err != nil {
		return cohortSnapshot{}, err
	}
	students, err := repo.ListStudents(ctx, cohortID)
	if err != nil {
		return cohortSnapshot{}, fmt.Errorf("list students: %w", err)
	}

	to := attendance.AttendanceWindowEnd(cohort.EndDate, now)
	var records []attendance.Record
	if !to.Before(timeutil.DateOnly(cohort.StartDate)) {
		records, err = repo.ListRecords(ctx, cohortID, cohort.StartDate, to)
		if err != nil {
			return cohortSnapshot{}, fmt.Errorf("list records: %w", err)
		}
	}

	return cohortSnapshot{Cohort: cohort, Students: students, Records: records, WindowTo: to}, nil
}

func buildCohortReport(ctx context.Context, repo attendance.Repository, cohortID string, trendWindow int, now time.Time) (*attendance.CohortReport, error) {
	snap, err := loadCohortSnapshot(ctx, repo, cohortID, now)
	if err != nil {
		return nil, err
	}

	byStudent := make(map[string][]attendance.Record, len(snap.Students))
	for _, r := range snap.Records {
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r)
	}

	totalWorkingDays := attendance.CohortWorkingDays(snap.Cohort.StartDate, snap.Cohort.EndDate, now)
	students := make([]attendance.StudentData, 0, len(snap.Students))
	for _, s := range snap.Students {
		students = append(students, attendance.BuildStudentData(s, byStudent[s.ID], totalWorkingDays, trendWindow))
	}

	return &attendance.CohortReport{
		Cohort:      attendance.BuildCohortData(*snap.Cohort, students),
		Students:    students,
		GeneratedAt: now,
	}, nil
}

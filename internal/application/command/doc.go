// Package command contains write operations (CQRS - Commands).
// Commands change stored attendance: CSV imports, backfills of missing days
// and the templates operators fill in before importing.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/M-RBR/codac-25-sub000/config"
	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// Features is the subset of config.FeatureFlags the commands consult.
type Features interface {
	IsEnabled(feature string, ctx *config.FeatureContext) bool
}

type noFeatures struct{}

func (noFeatures) IsEnabled(string, *config.FeatureContext) bool { return false }

// WriteLock serializes writes to one cohort across processes.
// Acquire reports false when someone else holds the lock.
type WriteLock interface {
	Acquire(ctx context.Context, cohortID, token string) (bool, error)
	Release(ctx context.Context, cohortID, token string) error
}

var validate = validator.New()

func validateCommand(op string, c any) error {
	if err := validate.Struct(c); err != nil {
		return shared.WrapError("command", op, shared.ErrValidation, "invalid command", err)
	}
	return nil
}

func validateStatus(op string, s attendance.Status) error {
	if s != "" && !s.IsValid() {
		return shared.NewDomainError("command", op, shared.ErrInvalidInput,
			fmt.Sprintf("unknown attendance status %q", s))
	}
	return nil
}

// cohortState is a cohort with its enrolled students and the records stored
// up to today.
type cohortState struct {
	Cohort   *attendance.Cohort
	Students []attendance.Student
	Records  []attendance.Record
}

func (s cohortState) studentIDs() []string {
	ids := make([]string, len(s.Students))
	for i, st := range s.Students {
		ids[i] = st.ID
	}
	return ids
}

func (s cohortState) studentNames() map[string]string {
	names := make(map[string]string, len(s.Students))
	for _, st := range s.Students {
		names[st.ID] = st.Name
	}
	return names
}

// loadCohortState fails with ErrNoStudents for an empty cohort. Records are
// only loaded when withRecords is set.
func loadCohortState(ctx context.Context, repo attendance.Repository, cohortID string, now time.Time, withRecords bool) (cohortState, error) {
	cohort, err := repo.GetCohort(ctx, cohortID)
	if err != nil {
		return cohortState{}, err
	}
	students, err := repo.ListStudents(ctx, cohortID)
	if err != nil {
		return cohortState{}, fmt.Errorf("list students: %w", err)
	}
	if len(students) == 0 {
		return cohortState{}, shared.ErrNoStudents
	}

	state := cohortState{Cohort: cohort, Students: students}
	if !withRecords {
		return state, nil
	}

	to := attendance.AttendanceWindowEnd(cohort.EndDate, now)
	if to.Before(timeutil.DateOnly(cohort.StartDate)) {
		return state, nil
	}
	state.Records, err = repo.ListRecords(ctx, cohortID, cohort.StartDate, to)
	if err != nil {
		return cohortState{}, fmt.Errorf("list records: %w", err)
	}
	return state, nil
}

package attendance

import (
	"context"
	"time"
)

// Repository is the persistence port for cohorts, students and records.
type Repository interface {
	// GetCohort returns shared.ErrCohortNotFound when the cohort does not exist.
	GetCohort(ctx context.Context, cohortID string) (*Cohort, error)

	// ListStudents returns the students enrolled in a cohort, ordered by name.
	ListStudents(ctx context.Context, cohortID string) ([]Student, error)

	// ListRecords returns the cohort's records with dates in [from, to].
	ListRecords(ctx context.Context, cohortID string, from, to time.Time) ([]Record, error)

	// SaveBatch upserts prepared records in a single transaction. Records whose
	// stored status already matches are counted as skipped.
	SaveBatch(ctx context.Context, rows []PreparedRecord) (BulkOperationResult, error)
}

// ImportRunRepository remembers applied imports by payload fingerprint.
type ImportRunRepository interface {
	HasImportRun(ctx context.Context, cohortID, fingerprint string) (bool, error)
	SaveImportRun(ctx context.Context, run ImportRun) error
}

// ReportCache caches cohort read models. A miss is (nil, nil).
type ReportCache interface {
	GetCohortReport(ctx context.Context, key string) (*CohortReport, error)
	SetCohortReport(ctx context.Context, key string, report *CohortReport, ttl time.Duration) error
	InvalidateCohort(ctx context.Context, cohortID string) error
}

// ReportCacheKey names one cached report variant of a cohort. Every key of a
// cohort shares the "<cohortID>:" prefix.
func ReportCacheKey(cohortID, variant string) string {
	if variant == "" {
		variant = "default"
	}
	return cohortID + ":" + variant
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRepository implements attendance.Repository and
// attendance.ImportRunRepository for PostgreSQL.
type AttendanceRepository struct {
	conn  *Connection
	clock timeutil.Clock
	newID func() string
}

// NewAttendanceRepository creates a new AttendanceRepository.
func NewAttendanceRepository(conn *Connection, clock timeutil.Clock) *AttendanceRepository {
	return &AttendanceRepository{
		conn:  conn,
		clock: clock,
		newID: func() string { return uuid.NewString() },
	}
}

var (
	_ attendance.Repository          = (*AttendanceRepository)(nil)
	_ attendance.ImportRunRepository = (*AttendanceRepository)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetCohort returns a cohort by ID.
func (r *AttendanceRepository) GetCohort(ctx context.Context, cohortID string) (*attendance.Cohort, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var c attendance.Cohort
	err := r.conn.QueryRow(ctx, `
		SELECT id, name, start_date, end_date
		FROM cohorts
		WHERE id = $1
	`, cohortID).Scan(&c.ID, &c.Name, &c.StartDate, &c.EndDate)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCohortNotFound
		}
		return nil, wrapStorageError("GetCohort", err)
	}

	c.StartDate = timeutil.DateOnly(c.StartDate)
	if c.EndDate != nil {
		end := timeutil.DateOnly(*c.EndDate)
		c.EndDate = &end
	}
	return &c, nil
}

// ListStudents returns the students enrolled in a cohort, ordered by name.
func (r *AttendanceRepository) ListStudents(ctx context.Context, cohortID string) ([]attendance.Student, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, `
		SELECT id, name, COALESCE(email, '')
		FROM students
		WHERE cohort_id = $1
		ORDER BY name, id
	`, cohortID)
	if err != nil {
		return nil, wrapStorageError("ListStudents", err)
	}
	defer rows.Close()

	students := make([]attendance.Student, 0)
	for rows.Next() {
		var s attendance.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Email); err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorageError("ListStudents", err)
	}
	return students, nil
}

// ListRecords returns the cohort's records dated within [from, to].
func (r *AttendanceRepository) ListRecords(ctx context.Context, cohortID string, from, to time.Time) ([]attendance.Record, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, `
		SELECT id, student_id, date, status
		FROM attendance_records
		WHERE cohort_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY student_id, date
	`, cohortID, timeutil.DateOnly(from), timeutil.DateOnly(to))
	if err != nil {
		return nil, wrapStorageError("ListRecords", err)
	}
	defer rows.Close()

	records := make([]attendance.Record, 0)
	for rows.Next() {
		var (
			rec    attendance.Record
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.Date, &status); err != nil {
			return nil, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		rec.Date = timeutil.DateOnly(rec.Date)
		rec.Status = attendance.Status(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorageError("ListRecords", err)
	}
	return records, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Batch upsert
// ─────────────────────────────────────────────────────────────────────────────

// The WHERE on the update leaves rows whose status is unchanged untouched, so
// RETURNING yields nothing for them. xmax = 0 only holds for fresh inserts.
const upsertRecordSQL = `
	INSERT INTO attendance_records (
		id, student_id, cohort_id, date, status, source, metadata, created_by
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (student_id, date) DO UPDATE SET
		status = EXCLUDED.status,
		source = EXCLUDED.source,
		metadata = EXCLUDED.metadata,
		updated_by = EXCLUDED.created_by,
		updated_at = NOW()
	WHERE attendance_records.status IS DISTINCT FROM EXCLUDED.status
	RETURNING (xmax = 0) AS inserted
`

// SaveBatch upserts rows in one transaction. Either every row is written or
// none is; the error is then marked retryable when the cause is transient.
func (r *AttendanceRepository) SaveBatch(ctx context.Context, rows []attendance.PreparedRecord) (attendance.BulkOperationResult, error) {
	result := attendance.BulkOperationResult{
		Errors:   []attendance.OperationIssue{},
		Warnings: []attendance.OperationIssue{},
	}
	if len(rows) == 0 {
		result.Success = true
		return result, nil
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	start := r.clock.Now()
	var created, updated, skipped int

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, row := range rows {
			var metadata any
			if len(row.Metadata) > 0 {
				metadata = row.Metadata
			}
			batch.Queue(upsertRecordSQL,
				r.newID(),
				row.StudentID,
				row.CohortID,
				timeutil.DateOnly(row.Date),
				string(row.Status),
				row.Source,
				metadata,
				row.CreatedBy,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range rows {
			var inserted bool
			err := br.QueryRow().Scan(&inserted)
			switch {
			case err == nil && inserted:
				created++
			case err == nil:
				updated++
			case errors.Is(err, pgx.ErrNoRows):
				skipped++
			default:
				_ = br.Close()
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		return result, wrapStorageError("SaveBatch", err)
	}

	elapsed := r.clock.Now().Sub(start)
	result.Success = true
	result.TotalProcessed = len(rows)
	result.Created = created
	result.Updated = updated
	result.Skipped = skipped
	result.Summary = attendance.OperationSummary{
		Duration:         elapsed,
		RecordsPerSecond: attendance.RecordsPerSecond(len(rows), elapsed),
	}
	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Import runs
// ─────────────────────────────────────────────────────────────────────────────

// HasImportRun reports whether a payload with this fingerprint was already
// applied to the cohort.
func (r *AttendanceRepository) HasImportRun(ctx context.Context, cohortID, fingerprint string) (bool, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.conn.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM attendance_import_runs
			WHERE cohort_id = $1 AND fingerprint = $2
		)
	`, cohortID, fingerprint).Scan(&exists)
	if err != nil {
		return false, wrapStorageError("HasImportRun", err)
	}
	return exists, nil
}

// SaveImportRun stores an applied import. A concurrent duplicate maps to
// shared.ErrImportAlreadyApplied.
func (r *AttendanceRepository) SaveImportRun(ctx context.Context, run attendance.ImportRun) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	if run.ID == "" {
		run.ID = r.newID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = r.clock.Now()
	}

	_, err := r.conn.Exec(ctx, `
		INSERT INTO attendance_import_runs (id, cohort_id, fingerprint, record_count, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, run.CohortID, run.Fingerprint, run.RecordCount, run.CreatedBy, run.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrImportAlreadyApplied
		}
		return wrapStorageError("SaveImportRun", err)
	}
	return nil
}

// wrapStorageError tags driver errors with a domain kind so the application
// layer can decide on retries without importing pgx.
func wrapStorageError(op string, err error) error {
	kind := shared.ErrStorage
	if IsTransient(err) {
		kind = shared.ErrServiceUnavailable
	}
	return shared.WrapError("postgres", op, kind, "query failed", err)
}

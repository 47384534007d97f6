package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
	"github.com/M-RBR/codac-25-sub000/pkg/logger"
)

// cohortWrite writes prepared rows for one cohort under its write lock and
// drops the cohort's cached reports afterwards. lock and cache may be nil.
type cohortWrite struct {
	writer *BatchWriter
	lock   WriteLock
	cache  attendance.ReportCache
	log    *logger.Logger
}

// The result is nil when nothing was attempted.
func (cw cohortWrite) run(ctx context.Context, op, cohortID string, rows []attendance.PreparedRecord) (*attendance.BulkOperationResult, error) {
	if cw.lock != nil {
		token := uuid.NewString()
		ok, err := cw.lock.Acquire(ctx, cohortID, token)
		if err != nil {
			return nil, shared.WrapError("command", op, shared.ErrServiceUnavailable, "acquire cohort write lock", err)
		}
		if !ok {
			return nil, shared.NewDomainError("command", op, shared.ErrInvalidState, "another write is in progress for this cohort")
		}
		defer func() {
			// The lock expires on its own if this fails.
			if err := cw.lock.Release(context.WithoutCancel(ctx), cohortID, token); err != nil {
				cw.log.Warn("failed to release cohort write lock", logger.Err(err))
			}
		}()
	}

	result := cw.writer.Write(ctx, rows)

	if cw.cache != nil && result.Created+result.Updated > 0 {
		if err := cw.cache.InvalidateCohort(ctx, cohortID); err != nil {
			cw.log.Warn("failed to invalidate cohort reports", logger.Err(err))
		}
	}

	if result.Failed > 0 {
		return &result, shared.ErrBatchWriteFailed
	}
	return &result, nil
}

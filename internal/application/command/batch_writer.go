package command

import (
	"context"
	"fmt"
	"time"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
	"github.com/M-RBR/codac-25-sub000/pkg/logger"
	"github.com/M-RBR/codac-25-sub000/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// BATCH WRITER
// Shared write path of imports and backfills: chunk, save each chunk in its
// own transaction with retries, merge the per-batch outcomes.
// ══════════════════════════════════════════════════════════════════════════════

// WriteConfig tunes batched writes.
type WriteConfig struct {
	BatchSize int

	// Extra attempts per batch after a transient failure.
	BatchRetries int

	// First retry delay. Zero keeps the retrier default.
	RetryDelay time.Duration
}

// DefaultWriteConfig returns default configuration.
func DefaultWriteConfig() WriteConfig {
	return WriteConfig{
		BatchSize:    attendance.DefaultBatchSize,
		BatchRetries: 3,
	}
}

// BatchWriter saves prepared records batch by batch.
type BatchWriter struct {
	repo   attendance.Repository
	log    *logger.Logger
	config WriteConfig
}

// NewBatchWriter creates a new BatchWriter.
func NewBatchWriter(repo attendance.Repository, log *logger.Logger, config WriteConfig) *BatchWriter {
	if config.BatchSize <= 0 {
		config.BatchSize = attendance.DefaultBatchSize
	}
	if config.BatchRetries < 0 {
		config.BatchRetries = 0
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BatchWriter{repo: repo, log: log.With(logger.Component("batch_writer")), config: config}
}

// Write saves rows in order. A batch that still fails after its retries is
// counted as failed in full and reported as one error; later batches are
// still attempted. The result is never nil-sliced.
func (w *BatchWriter) Write(ctx context.Context, rows []attendance.PreparedRecord) attendance.BulkOperationResult {
	batches := attendance.CreateBatches(rows, w.config.BatchSize)
	results := make([]attendance.BulkOperationResult, 0, len(batches))

	offset := 0
	for i, batch := range batches {
		results = append(results, w.writeBatch(ctx, i, offset, batch))
		offset += len(batch)
	}

	merged := attendance.MergeBulkResults(results)
	w.log.Info("bulk write finished",
		logger.Int("batches", len(batches)),
		logger.RecordCount(merged.TotalProcessed),
		logger.Int("created", merged.Created),
		logger.Int("updated", merged.Updated),
		logger.Int("skipped", merged.Skipped),
		logger.Int("failed", merged.Failed),
	)
	return merged
}

func (w *BatchWriter) writeBatch(ctx context.Context, index, offset int, batch []attendance.PreparedRecord) attendance.BulkOperationResult {
	log := w.log.With(logger.BatchIndex(index), logger.RecordCount(len(batch)))

	opts := []retry.Option{
		retry.WithRetryIf(shared.IsRetryable),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("batch write failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	}
	if w.config.RetryDelay > 0 {
		opts = append(opts, retry.WithInitialDelay(w.config.RetryDelay))
	}
	retrier := retry.BatchWriteRetrier(w.config.BatchRetries+1, opts...)

	started := time.Now()
	result, err := retry.DoWithData(ctx, retrier, func(ctx context.Context) (attendance.BulkOperationResult, error) {
		return w.repo.SaveBatch(ctx, batch)
	})
	elapsed := time.Since(started)

	if err != nil {
		log.Error("batch write failed", logger.Err(err))
		return attendance.BulkOperationResult{
			TotalProcessed: len(batch),
			Failed:         len(batch),
			Errors: []attendance.OperationIssue{{
				Index:   offset,
				Message: fmt.Sprintf("Batch %d failed: %v", index+1, err),
			}},
			Warnings: []attendance.OperationIssue{},
			Summary:  attendance.OperationSummary{Duration: elapsed},
		}
	}

	if result.Errors == nil {
		result.Errors = []attendance.OperationIssue{}
	}
	if result.Warnings == nil {
		result.Warnings = []attendance.OperationIssue{}
	}
	result.Summary.Duration = elapsed
	result.Summary.RecordsPerSecond = attendance.RecordsPerSecond(len(batch), elapsed)

	log.Debug("batch written",
		logger.Int("created", result.Created),
		logger.Int("updated", result.Updated),
		logger.Int("skipped", result.Skipped),
		logger.Latency(elapsed),
	)
	return result
}

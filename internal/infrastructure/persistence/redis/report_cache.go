package redis

import (
	"context"
	"errors"
	"time"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/pkg/circuitbreaker"
	"github.com/M-RBR/codac-25-sub000/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// COHORT REPORT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// CohortReportCache implements attendance.ReportCache on top of Cache.
// Keys come from attendance.ReportCacheKey so that InvalidateCohort can drop
// every variant of a cohort at once.
type CohortReportCache struct {
	cache   *Cache
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
}

// ReportCacheOption configures a CohortReportCache.
type ReportCacheOption func(*CohortReportCache)

// WithBreaker routes reads and writes through cb. While cb is open they fail
// fast with circuitbreaker.ErrCircuitOpen.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) ReportCacheOption {
	return func(c *CohortReportCache) {
		c.breaker = cb
	}
}

// NewCohortReportCache creates a new CohortReportCache.
func NewCohortReportCache(cache *Cache, opts ...ReportCacheOption) *CohortReportCache {
	c := &CohortReportCache{cache: cache, retrier: retry.CacheRetrier()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CohortReportCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(ctx, fn)
}

var _ attendance.ReportCache = (*CohortReportCache)(nil)

// GetCohortReport returns (nil, nil) on a miss.
func (c *CohortReportCache) GetCohortReport(ctx context.Context, key string) (*attendance.CohortReport, error) {
	var report attendance.CohortReport
	miss := false
	err := c.guard(ctx, func(ctx context.Context) error {
		err := c.cache.Get(ctx, ReportKey(key), &report)
		if errors.Is(err, ErrCacheMiss) {
			miss = true
			return nil
		}
		return err
	})
	if err != nil || miss {
		return nil, err
	}
	return &report, nil
}

// SetCohortReport stores report under key. A zero ttl uses TTLCohortReport.
func (c *CohortReportCache) SetCohortReport(ctx context.Context, key string, report *attendance.CohortReport, ttl time.Duration) error {
	if report == nil {
		return ErrCacheNilValue
	}
	if ttl == 0 {
		ttl = TTLCohortReport
	}
	return c.guard(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, ReportKey(key), report, ttl)
	})
}

// InvalidateCohort drops every cached report of a cohort. A stale report
// outlives a write, so this one is retried once.
func (c *CohortReportCache) InvalidateCohort(ctx context.Context, cohortID string) error {
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		if err := c.cache.DeleteByPattern(ctx, ReportPattern(cohortID)); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT LOCK
// ══════════════════════════════════════════════════════════════════════════════

// ImportLock serializes writes per cohort across operator processes.
type ImportLock struct {
	cache *Cache
	ttl   time.Duration
}

// NewImportLock creates an ImportLock. A zero ttl uses TTLImportLock.
func NewImportLock(cache *Cache, ttl time.Duration) *ImportLock {
	if ttl <= 0 {
		ttl = TTLImportLock
	}
	return &ImportLock{cache: cache, ttl: ttl}
}

// Acquire takes the cohort's write lock. ok is false when another process
// holds it.
func (l *ImportLock) Acquire(ctx context.Context, cohortID, token string) (bool, error) {
	return l.cache.TryLock(ctx, "import:"+cohortID, token, l.ttl)
}

// Release frees the cohort's write lock if token still owns it.
func (l *ImportLock) Release(ctx context.Context, cohortID, token string) error {
	return l.cache.Unlock(ctx, "import:"+cohortID, token)
}

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/pkg/circuitbreaker"
)

func TestReportKeys(t *testing.T) {
	key := attendance.ReportCacheKey("c1", "2024-01-15")

	assert.Equal(t, "attendance:report:c1:2024-01-15", ReportKey(key))
	assert.Equal(t, "c1:default", attendance.ReportCacheKey("c1", ""))
	assert.Equal(t, "attendance:report:c1:*", ReportPattern("c1"))
	assert.Equal(t, "attendance:lock:import:c1", LockKey("import:c1"))
}

func TestConfig_OptionsFromHost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "cache.internal"
	cfg.DB = 2

	opts, err := cfg.Options()
	require.NoError(t, err)

	assert.Equal(t, "cache.internal:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.ReadTimeout)
}

func TestConfig_OptionsFromURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "redis://:secret@redis.example.com:6380/4"

	opts, err := cfg.Options()
	require.NoError(t, err)

	assert.Equal(t, "redis.example.com:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 4, opts.DB)
}

func TestConfig_OptionsBadURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "http://not-redis"

	_, err := cfg.Options()
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestNewImportLock_DefaultTTL(t *testing.T) {
	lock := NewImportLock(nil, 0)
	assert.Equal(t, TTLImportLock, lock.ttl)
}

func TestCohortReportCache_OpenBreakerSkipsRedis(t *testing.T) {
	cb := circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(1))
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("i/o timeout") })
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	// A nil Cache would panic if the breaker let the call through.
	reports := NewCohortReportCache(nil, WithBreaker(cb))

	report, err := reports.GetCohortReport(context.Background(), "c1:2024-01-05:w14")
	assert.Nil(t, report)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)

	err = reports.SetCohortReport(context.Background(), "c1:2024-01-05:w14", &attendance.CohortReport{}, 0)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

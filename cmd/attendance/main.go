// Package main is the operator CLI of the attendance analytics engine:
// cohort reports, completion checks, exports, CSV imports, backfills and
// schema migrations over the PostgreSQL store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/M-RBR/codac-25-sub000/config"
	"github.com/M-RBR/codac-25-sub000/internal/application/command"
	"github.com/M-RBR/codac-25-sub000/internal/application/query"
	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/internal/infrastructure/persistence/postgres"
	"github.com/M-RBR/codac-25-sub000/internal/infrastructure/persistence/redis"
	"github.com/M-RBR/codac-25-sub000/pkg/circuitbreaker"
	"github.com/M-RBR/codac-25-sub000/pkg/logger"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

var (
	configPath   string
	outputFormat string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "attendance",
		Short:         "Attendance analytics for bootcamp cohorts",
		SilenceUsage:  true,
		SilenceErrors: false,
		// "completion" is the attendance completion report.
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", envOr("ATTENDANCE_CONFIG", "attendance.toml"), "TOML override file (missing file is ignored)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text or json")

	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newCompletionCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newSummaryCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newBackfillCmd())
	rootCmd.AddCommand(newTemplateCmd())
	rootCmd.AddCommand(newEstimateCmd())
	rootCmd.AddCommand(newMigrateCmd())

	return rootCmd
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING
// ══════════════════════════════════════════════════════════════════════════════

// app holds the infrastructure shared by the subcommands.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	clock timeutil.Clock

	db    *postgres.Connection
	redis *redis.Cache
	repo  *postgres.AttendanceRepository

	// nil when Redis is disabled or unreachable.
	reports attendance.ReportCache
	lock    command.WriteLock
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	fileCfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := fileCfg.Apply(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config file: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = logger.Format(cfg.Observability.LogFormat)
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// openApp loads configuration and connects to PostgreSQL and, unless
// disabled, Redis. A Redis failure only disables caching.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)

	a := &app{
		cfg:   cfg,
		log:   log,
		clock: timeutil.InLocation(cfg.App.Location),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	dbCfg := postgres.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	dbCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	dbCfg.MinConns = int32(cfg.Database.MinIdleConns)
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	dbCfg.QueryTimeout = cfg.Database.QueryTimeout

	a.db, err = postgres.NewConnection(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.repo = postgres.NewAttendanceRepository(a.db, a.clock)
	log.Debug("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Redis.Disabled {
		log.Debug("redis disabled, caching off")
		return a, nil
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.URL = cfg.Redis.URL
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	a.redis, err = redis.NewCache(ctx, redisCfg)
	if err != nil {
		log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		return a, nil
	}
	breaker := circuitbreaker.ReportCacheBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("report cache circuit changed state",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	a.reports = redis.NewCohortReportCache(a.redis, redis.WithBreaker(breaker))
	a.lock = redis.NewImportLock(a.redis, redis.TTLImportLock)
	log.Debug("redis connection established")

	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close redis", logger.Err(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(logger.WithContext(ctx, a.log), a)
}

func (a *app) writeConfig() command.WriteConfig {
	return command.WriteConfig{
		BatchSize:    a.cfg.Attendance.BulkBatchSize,
		BatchRetries: a.cfg.Attendance.BatchRetries,
	}
}

func (a *app) reportHandler() *query.GetCohortAttendanceHandler {
	return query.NewGetCohortAttendanceHandler(a.repo, a.reports, a.cfg.Features, a.clock, a.log,
		query.GetCohortAttendanceConfig{
			TrendWindow: a.cfg.Attendance.TrendWindow,
			CacheTTL:    a.cfg.Attendance.StatsCacheTTL,
		})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

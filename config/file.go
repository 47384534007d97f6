package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig is the optional TOML override file read by the CLI.
//
//	[attendance]
//	trend_window = 10
//	stats_cache_ttl = "5m"
//
//	[features]
//	stats_cache = false
type FileConfig struct {
	Attendance AttendanceFile  `toml:"attendance"`
	Features   map[string]bool `toml:"features"`
}

// AttendanceFile mirrors AttendanceConfig; nil fields keep the env value.
type AttendanceFile struct {
	TrendWindow    *int    `toml:"trend_window"`
	BulkBatchSize  *int    `toml:"bulk_batch_size"`
	BulkThroughput *int    `toml:"bulk_throughput"`
	BatchRetries   *int    `toml:"batch_retries"`
	StatsCacheTTL  *string `toml:"stats_cache_ttl"`
}

// LoadFile reads a TOML override file. A missing file is not an error.
func LoadFile(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("stat config file: %w", err)
	}
	var fc FileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("decode config file: %w", err)
	}
	return fc, nil
}

// Apply overlays the file on top of cfg and re-validates.
func (fc FileConfig) Apply(cfg *Config) error {
	a := fc.Attendance
	if a.TrendWindow != nil {
		cfg.Attendance.TrendWindow = *a.TrendWindow
	}
	if a.BulkBatchSize != nil {
		cfg.Attendance.BulkBatchSize = *a.BulkBatchSize
	}
	if a.BulkThroughput != nil {
		cfg.Attendance.BulkThroughput = *a.BulkThroughput
	}
	if a.BatchRetries != nil {
		cfg.Attendance.BatchRetries = *a.BatchRetries
	}
	if a.StatsCacheTTL != nil {
		ttl, err := time.ParseDuration(*a.StatsCacheTTL)
		if err != nil {
			return fmt.Errorf("attendance.stats_cache_ttl: %w", err)
		}
		cfg.Attendance.StatsCacheTTL = ttl
	}

	if cfg.Features != nil {
		for name, enabled := range fc.Features {
			if err := cfg.Features.Set(name, enabled); err != nil {
				return err
			}
		}
	}
	return cfg.Validate()
}

// Package config loads the formosa YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the formosa tools.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	TWSE     TWSE           `yaml:"twse"`
	Sync     SyncConfig     `yaml:"sync"`
	Backtest BacktestConfig `yaml:"backtest"`
	Logging  Logging        `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// TWSE holds endpoints and politeness settings for the exchange API.
type TWSE struct {
	QuoteURL             string `yaml:"quote_url"`
	CalendarURL          string `yaml:"calendar_url"` // fmt template taking the ROC year
	TimeoutSec           int    `yaml:"timeout_sec"`
	MaxAttempts          int    `yaml:"max_attempts"`
	RateLimitPerMin      int    `yaml:"rate_limit_per_min"`
	RateLimitCooldownSec int    `yaml:"rate_limit_cooldown_sec"`
}

// SyncConfig holds parameters for the ingestion loop.
type SyncConfig struct {
	StartDate  string `yaml:"start_date"`
	MaxWorkers int    `yaml:"max_workers"`
	HaltOnFail int    `yaml:"halt_on_fail"` // consecutive failed days before stopping; 0 = never
}

// BacktestConfig holds parameters for the strategy scan.
type BacktestConfig struct {
	LookbackDays int   `yaml:"lookback_days"` // calendar-day buffer read before the scan range
	Horizons     []int `yaml:"horizons"`
	MaxWorkers   int   `yaml:"max_workers"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file overrides a field.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/twse.db",
		},
		TWSE: TWSE{
			QuoteURL:             "https://www.twse.com.tw/exchangeReport/MI_INDEX",
			CalendarURL:          "https://www.twse.com.tw/holidaySchedule/holidaySchedule?queryYear=%d&response=html",
			TimeoutSec:           12,
			MaxAttempts:          3,
			RateLimitPerMin:      120,
			RateLimitCooldownSec: 30,
		},
		Sync: SyncConfig{
			StartDate:  "2020-01-01",
			MaxWorkers: 4,
			HaltOnFail: 20,
		},
		Backtest: BacktestConfig{
			LookbackDays: 250,
			Horizons:     []int{5, 10, 20, 60},
			MaxWorkers:   4,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML configuration file at the given path on top of the
// defaults, then applies environment variable overrides. A missing file is
// not an error; the defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if uerr := yaml.Unmarshal(data, cfg); uerr != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, uerr)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("TWSE_QUOTE_URL"); v != "" {
		cfg.TWSE.QuoteURL = v
	}
	if v := os.Getenv("TWSE_CALENDAR_URL"); v != "" {
		cfg.TWSE.CalendarURL = v
	}
	if v := os.Getenv("TWSE_RATE_LIMIT_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TWSE.RateLimitPerMin = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

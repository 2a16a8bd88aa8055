// Package config loads and validates the meanrev YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"meanrev/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the meanrev backtester.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig holds the strategy and simulation parameters.
type BacktestConfig struct {
	Assets          []string `yaml:"assets"`
	StartDate       string   `yaml:"start_date"`
	EndDate         string   `yaml:"end_date"`
	InitialCapital  float64  `yaml:"initial_capital"`
	LookbackWindow  int      `yaml:"lookback_window"`
	EntryZScore     float64  `yaml:"entry_zscore"`
	ExitZScore      float64  `yaml:"exit_zscore"`
	MaxPositionSize float64  `yaml:"max_position_size"`
	TransactionCost float64  `yaml:"transaction_cost"`
	GapPolicy       string   `yaml:"gap_policy"`
}

// Start parses the configured start date.
func (b *BacktestConfig) Start() (time.Time, error) {
	return time.Parse("2006-01-02", b.StartDate)
}

// End parses the configured end date.
func (b *BacktestConfig) End() (time.Time, error) {
	return time.Parse("2006-01-02", b.EndDate)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides. The result
// is not yet validated; callers run Validate before simulating.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks every backtest parameter before any simulation starts.
// All violations are reported as domain.ErrInvalidConfig so a run either
// starts with a fully coherent configuration or not at all.
func (c *Config) Validate() error {
	b := &c.Backtest

	if len(b.Assets) == 0 {
		return fmt.Errorf("%w: assets list is empty", domain.ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(b.Assets))
	for _, a := range b.Assets {
		if a == "" {
			return fmt.Errorf("%w: empty asset ticker", domain.ErrInvalidConfig)
		}
		if _, dup := seen[a]; dup {
			return fmt.Errorf("%w: duplicate asset %s", domain.ErrInvalidConfig, a)
		}
		seen[a] = struct{}{}
	}

	start, err := b.Start()
	if err != nil {
		return fmt.Errorf("%w: start_date %q: %v", domain.ErrInvalidConfig, b.StartDate, err)
	}
	end, err := b.End()
	if err != nil {
		return fmt.Errorf("%w: end_date %q: %v", domain.ErrInvalidConfig, b.EndDate, err)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start_date %s is not before end_date %s", domain.ErrInvalidConfig, b.StartDate, b.EndDate)
	}

	if b.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial_capital must be positive, got %v", domain.ErrInvalidConfig, b.InitialCapital)
	}
	if b.LookbackWindow <= 1 {
		return fmt.Errorf("%w: lookback_window must be > 1, got %d", domain.ErrInvalidConfig, b.LookbackWindow)
	}
	if b.EntryZScore <= 0 {
		return fmt.Errorf("%w: entry_zscore must be positive, got %v", domain.ErrInvalidConfig, b.EntryZScore)
	}
	if b.ExitZScore < 0 || b.ExitZScore >= b.EntryZScore {
		return fmt.Errorf("%w: exit_zscore must be in [0, entry_zscore), got %v", domain.ErrInvalidConfig, b.ExitZScore)
	}
	if b.MaxPositionSize <= 0 || b.MaxPositionSize > 1 {
		return fmt.Errorf("%w: max_position_size must be in (0, 1], got %v", domain.ErrInvalidConfig, b.MaxPositionSize)
	}
	if b.TransactionCost < 0 {
		return fmt.Errorf("%w: transaction_cost must be >= 0, got %v", domain.ErrInvalidConfig, b.TransactionCost)
	}
	if _, err := domain.ParseGapPolicy(b.GapPolicy); err != nil {
		return err
	}

	return nil
}

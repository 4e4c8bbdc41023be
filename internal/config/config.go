// Package config owns the YAML configuration surface: the simulation config
// consumed by the engine and the fixed baseline scorecard runs are compared
// against. Validation is fail-fast and reports every violation at once.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantpulse/stratrun/internal/indicators"
)

// Config is the full configuration for one simulation run. All values are
// static for the duration of the run.
type Config struct {
	Seed                int64   `yaml:"seed"`                 // generator seed; fully determines synthetic data
	Days                int     `yaml:"days"`                 // synthetic horizon, 24 hourly bars per day
	BasePrice           float64 `yaml:"base_price"`           // generator starting price
	InitialBalance      float64 `yaml:"initial_balance"`      // starting cash
	RiskPerTrade        float64 `yaml:"risk_per_trade"`       // fraction of equity risked per entry
	MaxPositions        int     `yaml:"max_positions"`        // concurrent open position cap
	StopLossPct         float64 `yaml:"stop_loss_pct"`        // fractional stop distance below entry
	TakeProfitPct       float64 `yaml:"take_profit_pct"`      // fractional target distance above entry
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // minimum ensemble confidence to act

	DataFile  string `yaml:"data_file,omitempty"` // optional CSV/JSONL bar file; overrides the generator
	OutputDir string `yaml:"output_dir"`          // artifact root; one subdirectory per run

	Guards   GuardsConfig   `yaml:"guards"`
	Cache    CacheConfig    `yaml:"cache"`
	Database DatabaseConfig `yaml:"database"`
}

// CacheConfig controls the optional Redis series cache
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	TTLHours int    `yaml:"ttl_hours"`
}

// DatabaseConfig controls the optional Postgres run archive
type DatabaseConfig struct {
	DSN string `yaml:"dsn,omitempty"` // empty disables persistence
}

// Default returns the standard configuration
func Default() *Config {
	return &Config{
		Seed:                42,
		Days:                90,
		BasePrice:           50000.0,
		InitialBalance:      100000.0,
		RiskPerTrade:        0.02,
		MaxPositions:        3,
		StopLossPct:         0.03,
		TakeProfitPct:       0.06,
		ConfidenceThreshold: 0.45,
		OutputDir:           "./artifacts/runs",
		Guards:              DefaultGuards(),
		Cache: CacheConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			TTLHours: 24,
		},
	}
}

// Load reads a config file over the defaults, so partial files work
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return cfg, nil
}

// Save writes the config to path
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate returns every violation. An empty slice means the config is
// usable; anything else must abort before the engine starts.
func (c *Config) Validate() []string {
	var errors []string

	if c.InitialBalance <= 0 {
		errors = append(errors, fmt.Sprintf("initial_balance must be positive, got %.2f", c.InitialBalance))
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 1 {
		errors = append(errors, fmt.Sprintf("risk_per_trade %.4f outside (0, 1]", c.RiskPerTrade))
	}
	if c.MaxPositions < 1 {
		errors = append(errors, fmt.Sprintf("max_positions must be at least 1, got %d", c.MaxPositions))
	}
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		errors = append(errors, fmt.Sprintf("stop_loss_pct %.4f outside (0, 1)", c.StopLossPct))
	}
	if c.TakeProfitPct <= 0 {
		errors = append(errors, fmt.Sprintf("take_profit_pct must be positive, got %.4f", c.TakeProfitPct))
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errors = append(errors, fmt.Sprintf("confidence_threshold %.4f outside [0, 1]", c.ConfidenceThreshold))
	}

	if c.DataFile == "" {
		minDays := indicators.MinBars / 24
		if c.Days < minDays {
			errors = append(errors, fmt.Sprintf("days %d yields fewer bars than the %d-bar indicator warmup (need at least %d days)",
				c.Days, indicators.MinBars, minDays))
		}
		if c.BasePrice <= 0 {
			errors = append(errors, fmt.Sprintf("base_price must be positive, got %.2f", c.BasePrice))
		}
	}

	if c.OutputDir == "" {
		errors = append(errors, "output_dir must be set")
	}

	errors = append(errors, c.Guards.validate()...)

	if c.Cache.Enabled {
		if c.Cache.Addr == "" {
			errors = append(errors, "cache.addr must be set when cache is enabled")
		}
		if c.Cache.TTLHours <= 0 {
			errors = append(errors, fmt.Sprintf("cache.ttl_hours must be positive, got %d", c.Cache.TTLHours))
		}
	}

	return errors
}

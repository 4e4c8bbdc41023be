package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Baseline is the fixed reference scorecard every run is measured against.
// It is supplied as static configuration, never computed by the engine.
type Baseline struct {
	TotalReturn float64         `yaml:"total_return"`
	SharpeRatio float64         `yaml:"sharpe_ratio"`
	WinRate     float64         `yaml:"win_rate"`
	MaxDrawdown float64         `yaml:"max_drawdown"`
	Targets     BaselineTargets `yaml:"targets"`
}

// BaselineTargets are the relative-improvement thresholds a run must clear
type BaselineTargets struct {
	SharpeImprovement   float64 `yaml:"sharpe_improvement"`   // e.g. 1.29 = +129% over baseline sharpe
	WinRateImprovement  float64 `yaml:"win_rate_improvement"` // relative win-rate gain
	DrawdownImprovement float64 `yaml:"drawdown_improvement"` // relative drawdown reduction
}

// DefaultBaseline returns the reference scorecard from the last accepted
// strategy revision
func DefaultBaseline() Baseline {
	return Baseline{
		TotalReturn: 0.1014,
		SharpeRatio: 0.197,
		WinRate:     0.375,
		MaxDrawdown: 0.106,
		Targets: BaselineTargets{
			SharpeImprovement:   1.29,
			WinRateImprovement:  0.47,
			DrawdownImprovement: 0.25,
		},
	}
}

// LoadBaseline reads a scorecard file over the defaults
func LoadBaseline(path string) (Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Baseline{}, fmt.Errorf("failed to read baseline: %w", err)
	}

	baseline := DefaultBaseline()
	if err := yaml.Unmarshal(data, &baseline); err != nil {
		return Baseline{}, fmt.Errorf("failed to parse baseline YAML: %w", err)
	}

	return baseline, nil
}

// SaveBaseline writes the scorecard to path
func SaveBaseline(baseline Baseline, path string) error {
	data, err := yaml.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write baseline: %w", err)
	}

	return nil
}

// Validate checks the scorecard can serve as a comparison denominator
func (b Baseline) Validate() []string {
	var errors []string

	if b.TotalReturn <= 0 {
		errors = append(errors, fmt.Sprintf("baseline total_return must be positive, got %.4f", b.TotalReturn))
	}
	if b.SharpeRatio <= 0 {
		errors = append(errors, fmt.Sprintf("baseline sharpe_ratio must be positive, got %.4f", b.SharpeRatio))
	}
	if b.WinRate <= 0 || b.WinRate > 1 {
		errors = append(errors, fmt.Sprintf("baseline win_rate %.4f outside (0, 1]", b.WinRate))
	}
	if b.MaxDrawdown <= 0 || b.MaxDrawdown >= 1 {
		errors = append(errors, fmt.Sprintf("baseline max_drawdown %.4f outside (0, 1)", b.MaxDrawdown))
	}
	if b.Targets.SharpeImprovement < 0 || b.Targets.WinRateImprovement < 0 || b.Targets.DrawdownImprovement < 0 {
		errors = append(errors, "baseline targets must be non-negative")
	}

	return errors
}

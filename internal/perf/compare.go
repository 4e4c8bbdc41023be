package perf

import (
	"github.com/quantpulse/stratrun/internal/config"
)

// Comparison measures a run against the fixed baseline scorecard. All
// improvements are relative: (run - baseline) / baseline, with drawdown
// negated so that less drawdown reads as a positive improvement.
type Comparison struct {
	Baseline config.Baseline `json:"baseline"`

	ReturnImprovement   float64 `json:"return_improvement"`
	SharpeImprovement   float64 `json:"sharpe_improvement"`
	WinRateImprovement  float64 `json:"win_rate_improvement"`
	DrawdownImprovement float64 `json:"drawdown_improvement"`

	SharpeTargetMet   bool `json:"sharpe_target_met"`
	WinRateTargetMet  bool `json:"win_rate_target_met"`
	DrawdownTargetMet bool `json:"drawdown_target_met"`
	TargetsMet        int  `json:"targets_met"`
}

// Compare scores the metrics against a baseline. The baseline's validity is
// the caller's concern; Compare assumes positive denominators.
func Compare(m *Metrics, baseline config.Baseline) *Comparison {
	c := &Comparison{
		Baseline:            baseline,
		ReturnImprovement:   relative(m.TotalReturn, baseline.TotalReturn),
		SharpeImprovement:   relative(m.SharpeRatio, baseline.SharpeRatio),
		WinRateImprovement:  relative(m.WinRate, baseline.WinRate),
		DrawdownImprovement: -relative(m.MaxDrawdown, baseline.MaxDrawdown),
	}

	c.SharpeTargetMet = c.SharpeImprovement >= baseline.Targets.SharpeImprovement
	c.WinRateTargetMet = c.WinRateImprovement >= baseline.Targets.WinRateImprovement
	c.DrawdownTargetMet = c.DrawdownImprovement >= baseline.Targets.DrawdownImprovement

	for _, met := range []bool{c.SharpeTargetMet, c.WinRateTargetMet, c.DrawdownTargetMet} {
		if met {
			c.TargetsMet++
		}
	}
	return c
}

// Improved reports whether at least one target was reached
func (c *Comparison) Improved() bool {
	return c.TargetsMet > 0
}

func relative(run, baseline float64) float64 {
	return (run - baseline) / baseline
}

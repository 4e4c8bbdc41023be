package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantpulse/stratrun/internal/backtest"
	"github.com/quantpulse/stratrun/internal/perf"
	"github.com/quantpulse/stratrun/internal/telemetry"
)

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	baseline, err := loadBaselineFile(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	runner := backtest.NewRunner(cfg)
	runner.SetMetrics(telemetry.New())

	closeCache := wireSeriesCache(cfg, runner)
	defer closeCache()

	prog := wireProgress(cmd, runner, "bench")

	log.Info().Int64("seed", cfg.Seed).Int("days", cfg.Days).Msg("Benchmarking against baseline")

	result, err := runner.Run(ctx)
	if err != nil {
		prog.Fail(err.Error())
		return err
	}

	metrics := perf.Summarize(result)
	comparison := perf.Compare(metrics, baseline)
	prog.Finish(fmt.Sprintf("grade %s, targets met %d/3", metrics.Grade, comparison.TargetsMet))

	printComparison(metrics, comparison)

	if !comparison.Improved() {
		return fmt.Errorf("no improvement target met (sharpe %+.1f%%, win rate %+.1f%%, drawdown %+.1f%%)",
			comparison.SharpeImprovement*100, comparison.WinRateImprovement*100, comparison.DrawdownImprovement*100)
	}
	return nil
}

func printComparison(m *perf.Metrics, c *perf.Comparison) {
	mark := func(met bool) string {
		if met {
			return "✅"
		}
		return "❌"
	}

	fmt.Printf("\nBaseline comparison: run %s, grade %s, score %.1f, %d trades\n\n",
		shortID(m.RunID), m.Grade, m.CompositeScore, m.TotalTrades)
	fmt.Printf("%-14s %12s %12s %12s %10s  %s\n", "Metric", "Run", "Baseline", "Change", "Target", "Met")
	fmt.Printf("%-14s %11.2f%% %11.2f%% %+11.1f%% %10s  %s\n", "Return",
		m.TotalReturn*100, c.Baseline.TotalReturn*100, c.ReturnImprovement*100, "-", "-")
	fmt.Printf("%-14s %12.3f %12.3f %+11.1f%% %+9.0f%%  %s\n", "Sharpe",
		m.SharpeRatio, c.Baseline.SharpeRatio, c.SharpeImprovement*100,
		c.Baseline.Targets.SharpeImprovement*100, mark(c.SharpeTargetMet))
	fmt.Printf("%-14s %11.1f%% %11.1f%% %+11.1f%% %+9.0f%%  %s\n", "Win rate",
		m.WinRate*100, c.Baseline.WinRate*100, c.WinRateImprovement*100,
		c.Baseline.Targets.WinRateImprovement*100, mark(c.WinRateTargetMet))
	fmt.Printf("%-14s %11.2f%% %11.2f%% %+11.1f%% %+9.0f%%  %s\n", "Max drawdown",
		m.MaxDrawdown*100, c.Baseline.MaxDrawdown*100, c.DrawdownImprovement*100,
		c.Baseline.Targets.DrawdownImprovement*100, mark(c.DrawdownTargetMet))
	fmt.Printf("\nTargets met: %d/3\n", c.TargetsMet)
	if m.Note != "" {
		fmt.Printf("Note: %s\n", m.Note)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantpulse/stratrun/internal/backtest"
	"github.com/quantpulse/stratrun/internal/config"
	runlog "github.com/quantpulse/stratrun/internal/log"
	"github.com/quantpulse/stratrun/internal/market/cache"
	"github.com/quantpulse/stratrun/internal/perf"
	"github.com/quantpulse/stratrun/internal/persistence"
	"github.com/quantpulse/stratrun/internal/persistence/postgres"
	"github.com/quantpulse/stratrun/internal/report"
	"github.com/quantpulse/stratrun/internal/telemetry"
)

func runSimulate(cmd *cobra.Command, args []string) error {
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

	prog := wireProgress(cmd, runner, "simulate")

	log.Info().Int64("seed", cfg.Seed).Int("days", cfg.Days).
		Float64("threshold", cfg.ConfidenceThreshold).Msg("Starting backtest")

	result, err := runner.Run(ctx)
	if err != nil {
		prog.Fail(err.Error())
		return err
	}

	metrics := perf.Summarize(result)
	comparison := perf.Compare(metrics, baseline)

	writer := report.NewWriter(cfg.OutputDir, result.RunID)
	paths, err := writer.WriteAll(report.Document{Run: result, Metrics: metrics, Comparison: comparison})
	if err != nil {
		prog.Fail("artifact write failed")
		return fmt.Errorf("failed to write artifacts: %w", err)
	}

	persistRun(cfg, result, metrics)

	prog.Finish(fmt.Sprintf("grade %s (score %.1f)", metrics.Grade, metrics.CompositeScore))

	fmt.Printf("\nRun %s %s: grade %s, score %.1f, return %+.2f%%, targets met %d/3\n",
		shortID(result.RunID), result.Status, metrics.Grade, metrics.CompositeScore,
		metrics.TotalReturn*100, comparison.TargetsMet)
	if metrics.Note != "" {
		fmt.Printf("Note: %s\n", metrics.Note)
	}
	fmt.Printf("Report: %s\n", paths.ReportMD)

	return nil
}

// loadRunConfig builds the effective config: file over defaults, flags over file
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("seed") {
		cfg.Seed, _ = cmd.Flags().GetInt64("seed")
	}
	if cmd.Flags().Changed("days") {
		cfg.Days, _ = cmd.Flags().GetInt("days")
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		cfg.OutputDir = out
	}
	if cmd.Flags().Lookup("data") != nil {
		if data, _ := cmd.Flags().GetString("data"); data != "" {
			cfg.DataFile = data
		}
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// loadBaselineFile reads the --baseline scorecard, falling back to the built-in one
func loadBaselineFile(cmd *cobra.Command) (config.Baseline, error) {
	if cmd.Flags().Lookup("baseline") == nil {
		return config.DefaultBaseline(), nil
	}
	path, _ := cmd.Flags().GetString("baseline")
	if path == "" {
		return config.DefaultBaseline(), nil
	}
	baseline, err := config.LoadBaseline(path)
	if err != nil {
		return config.Baseline{}, fmt.Errorf("failed to load baseline: %w", err)
	}
	if problems := baseline.Validate(); len(problems) > 0 {
		return config.Baseline{}, fmt.Errorf("invalid baseline: %s", strings.Join(problems, "; "))
	}
	return baseline, nil
}

// wireSeriesCache points the runner at Redis-backed series generation when the
// cache is enabled. Returns a closer that is safe to call either way.
func wireSeriesCache(cfg *config.Config, runner *backtest.Runner) func() {
	if !cfg.Cache.Enabled || cfg.DataFile != "" {
		return func() {}
	}
	c, err := cache.New(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB,
		time.Duration(cfg.Cache.TTLHours)*time.Hour)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Cache.Addr).Msg("Series cache unavailable, generating directly")
		return func() {}
	}
	runner.SetSeriesSource(backtest.SourceFunc(c.GetOrGenerate))
	return func() {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Msg("Series cache close failed")
		}
	}
}

// wireProgress attaches the step hook that drives the terminal progress line
func wireProgress(cmd *cobra.Command, runner *backtest.Runner, label string) *runlog.Progress {
	prog := runlog.NewProgress(label)
	if off, _ := cmd.Flags().GetBool("no-progress"); off {
		return prog
	}
	runner.SetStepHook(func(ev backtest.StepEvent) {
		prog.Observe(ev.Processed, ev.Total, ev.Equity, ev.TradeCount)
	})
	return prog
}

// persistRun archives the run when a database is configured. Archive failures
// are logged, not fatal: the artifacts on disk are already complete.
func persistRun(cfg *config.Config, result *backtest.Result, metrics *perf.Metrics) {
	if cfg.Database.DSN == "" {
		return
	}

	// Fresh context: the run context may already be canceled after an interrupt,
	// and a canceled partial run is still worth archiving.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		log.Error().Err(err).Msg("Run archive unavailable, skipping persistence")
		return
	}
	defer store.Close()

	run, trades := persistence.FromResult(result, metrics)
	if err := store.SaveRun(ctx, run, trades); err != nil {
		if errors.Is(err, persistence.ErrDuplicateRun) {
			log.Warn().Str("run_id", shortID(result.RunID)).Msg("Run already archived")
			return
		}
		log.Error().Err(err).Msg("Failed to archive run")
		return
	}
	log.Info().Str("run_id", shortID(result.RunID)).Msg("Run archived")
}

func shortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

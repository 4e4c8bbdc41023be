package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const version = "v1.4.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "stratrun",
		Short:   "Deterministic strategy backtests over synthetic market data",
		Version: version,
		Long: `StratRun replays a signal ensemble over seeded synthetic market data and
grades the outcome against a fixed baseline scorecard.

Same config and seed always reproduce the same trade log, so every grade
is a statement you can re-derive.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			applyLogLevel(cmd)
		},
	}

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one backtest and write its artifacts",
		Long:  "Runs a single backtest, analyzes it, writes results.json, trades.jsonl, equity.jsonl and report.md, and archives the run when a database is configured",
		RunE:  runSimulate,
	}
	addRunFlags(simulateCmd)
	simulateCmd.Flags().String("data", "", "Bar file (CSV or JSONL) replacing the generator")
	simulateCmd.Flags().String("baseline", "", "Baseline scorecard YAML (built-in scorecard when omitted)")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Run one backtest and verify it beats the baseline",
		Long:  "Runs a single backtest and prints the baseline comparison table; exits nonzero when no improvement target is met",
		RunE:  runBench,
	}
	addRunFlags(benchCmd)
	benchCmd.Flags().String("baseline", "", "Baseline scorecard YAML (built-in scorecard when omitted)")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a parameter grid and rank the results",
		Long:  "Runs every combination of thresholds, risk levels and seeds on a worker pool and writes a ranked leaderboard",
		RunE:  runSweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().Float64Slice("thresholds", nil, "Confidence thresholds to sweep (default: config value)")
	sweepCmd.Flags().Float64Slice("risks", nil, "Risk-per-trade values to sweep (default: config value)")
	sweepCmd.Flags().Int("seeds", 1, "Seeds per combination, derived from the base seed")
	sweepCmd.Flags().Int("workers", 4, "Concurrent runs")

	synthCmd := &cobra.Command{
		Use:   "synth",
		Short: "Emit a synthetic bar series for inspection",
		RunE:  runSynth,
	}
	synthCmd.Flags().Int64("seed", 42, "Generator seed")
	synthCmd.Flags().Int("days", 90, "Horizon in days (24 hourly bars each)")
	synthCmd.Flags().Float64("base-price", 50000, "Starting price")
	synthCmd.Flags().String("out", "bars.jsonl", "Output JSONL path")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve the monitor API",
		Long:  "Starts the HTTP server with /health, /metrics, /ws and the /api/v1 run archive endpoints",
		RunE:  runMonitor,
	}
	monitorCmd.Flags().String("addr", "127.0.0.1:8090", "Listen address")
	monitorCmd.Flags().String("dsn", "", "Postgres DSN for the run archive (falls back to the config file)")
	monitorCmd.Flags().String("config", "", "YAML config file to read the database DSN from")

	rootCmd.AddCommand(simulateCmd, benchCmd, sweepCmd, synthCmd, monitorCmd)
	applyEnvOverrides(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addRunFlags attaches the flags shared by every command that executes runs
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "YAML config file (defaults apply when omitted)")
	cmd.Flags().Int64("seed", 0, "Override the generator seed")
	cmd.Flags().Int("days", 0, "Override the horizon in days")
	cmd.Flags().String("out", "", "Override the artifact output directory")
	cmd.Flags().Bool("no-progress", false, "Disable the progress indicator")
}

// applyEnvOverrides lets STRATRUN_<FLAG> environment variables stand in for
// flags that were not passed, e.g. STRATRUN_DAYS=120 or STRATRUN_DSN=...
func applyEnvOverrides(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				return
			}
			key := "STRATRUN_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			val, ok := os.LookupEnv(key)
			if !ok {
				return
			}
			if err := f.Value.Set(val); err != nil {
				log.Warn().Str("flag", f.Name).Str("value", val).Err(err).Msg("Ignoring environment override")
				return
			}
			f.Changed = true
		})
	}
}

func applyLogLevel(cmd *cobra.Command) {
	raw, _ := cmd.Flags().GetString("log-level")
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		log.Warn().Str("log_level", raw).Msg("Unknown log level, staying on info")
		return
	}
	zerolog.SetGlobalLevel(level)
}

// signalContext returns a context canceled by SIGINT/SIGTERM so interrupted
// runs finalize as partial results instead of dying mid-step
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-quit:
			log.Warn().Msg("Interrupt received, finalizing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

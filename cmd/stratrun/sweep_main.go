package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantpulse/stratrun/internal/sweep"
	"github.com/quantpulse/stratrun/internal/telemetry"
)

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	thresholds, _ := cmd.Flags().GetFloat64Slice("thresholds")
	risks, _ := cmd.Flags().GetFloat64Slice("risks")
	seeds, _ := cmd.Flags().GetInt("seeds")
	workers, _ := cmd.Flags().GetInt("workers")

	ctx, cancel := signalContext()
	defer cancel()

	log.Info().Int("thresholds", len(thresholds)).Int("risks", len(risks)).
		Int("seeds", seeds).Int("workers", workers).Msg("Starting sweep")

	summary, err := sweep.Run(ctx, sweep.Plan{
		Base:       cfg,
		Thresholds: thresholds,
		Risks:      risks,
		Seeds:      seeds,
		Workers:    workers,
		Metrics:    telemetry.New(),
	})
	if err != nil {
		return err
	}

	writer := sweep.NewWriter(cfg.OutputDir)
	if err := writer.WriteAll(summary); err != nil {
		return fmt.Errorf("failed to write sweep artifacts: %w", err)
	}

	printLeaderboard(summary)
	fmt.Printf("\nSweep artifacts: %s\n", writer.Dir())
	return nil
}

func printLeaderboard(s *sweep.Summary) {
	fmt.Printf("\nSweep finished: %d combinations, %d completed, %d failed (%.1fs)\n\n",
		s.Combinations, s.Completed, s.Failed, s.FinishedAt.Sub(s.StartedAt).Seconds())

	limit := len(s.Leaderboard)
	if limit > 10 {
		limit = 10
	}
	fmt.Printf("%-4s %-28s %8s %6s %9s %7s\n", "#", "Label", "Score", "Grade", "Return", "Trades")
	for i := 0; i < limit; i++ {
		e := s.Leaderboard[i]
		if e.Error != "" {
			fmt.Printf("%-4d %-28s failed: %s\n", i+1, e.Label, e.Error)
			continue
		}
		fmt.Printf("%-4d %-28s %8.1f %6s %8.2f%% %7d\n", i+1, e.Label,
			e.Metrics.CompositeScore, e.Metrics.Grade, e.Metrics.TotalReturn*100, e.Metrics.TotalTrades)
	}

	if best := s.Best(); best != nil {
		fmt.Printf("\nBest: %s (score %.1f, threshold %.2f, risk %.3f, seed %d)\n",
			best.Label, best.Metrics.CompositeScore, best.Threshold, best.Risk, best.Seed)
	} else {
		fmt.Println("\nNo grid point completed")
	}
}

package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantpulse/stratrun/internal/market"
)

func runSynth(cmd *cobra.Command, args []string) error {
	gen := market.DefaultGenConfig()
	gen.Seed, _ = cmd.Flags().GetInt64("seed")
	gen.Days, _ = cmd.Flags().GetInt("days")
	gen.BasePrice, _ = cmd.Flags().GetFloat64("base-price")
	out, _ := cmd.Flags().GetString("out")

	series, err := market.Generate(gen)
	if err != nil {
		return err
	}
	if err := market.WriteJSONL(out, series); err != nil {
		return fmt.Errorf("failed to write series: %w", err)
	}

	first, last := series[0], series[len(series)-1]
	log.Info().Int64("seed", gen.Seed).Int("bars", len(series)).
		Float64("first_close", first.Close).Float64("last_close", last.Close).
		Msg("Synthetic series written")
	fmt.Printf("Wrote %d bars (%s to %s) to %s\n",
		len(series), first.Time.Format("2006-01-02"), last.Time.Format("2006-01-02"), out)
	return nil
}

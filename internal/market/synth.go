package market

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// GenConfig controls the synthetic series generator
type GenConfig struct {
	Seed      int64     `yaml:"seed" json:"seed"`             // RNG seed; same seed yields an identical series
	Days      int       `yaml:"days" json:"days"`             // Number of days to generate (24 hourly bars per day)
	BasePrice float64   `yaml:"base_price" json:"base_price"` // Starting price (default 50000)
	Start     time.Time `yaml:"start" json:"start"`           // Timestamp of the first bar
}

// DefaultGenConfig returns generator defaults
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Seed:      42,
		Days:      90,
		BasePrice: 50000.0,
		Start:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

const (
	regimePeriod   = 168 // bars between regime re-rolls (one week of hourly bars)
	baseVolatility = 0.015
	spikeChance    = 0.002
)

// Generate produces Days*24 hourly bars from a single seeded source. Price
// action cycles through weekly volatility regimes with time-of-day and
// weekend effects plus occasional spikes. All randomness flows through one
// *rand.Rand in a fixed draw order, so a seed fully determines the output.
func Generate(cfg GenConfig) (Series, error) {
	if cfg.Days <= 0 {
		return nil, fmt.Errorf("generate: days must be positive, got %d", cfg.Days)
	}
	if cfg.BasePrice <= 0 {
		return nil, fmt.Errorf("generate: base price must be positive, got %.4f", cfg.BasePrice)
	}
	if cfg.Start.IsZero() {
		cfg.Start = DefaultGenConfig().Start
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	n := cfg.Days * 24
	series := make(Series, 0, n)

	price := cfg.BasePrice
	regime := RegimeNormal
	regimeMult := 1.0
	trend := 0.0

	for i := 0; i < n; i++ {
		ts := cfg.Start.Add(time.Duration(i) * time.Hour)

		// Weekly regime re-roll picks volatility environment and drift
		if i%regimePeriod == 0 {
			switch roll := rng.Float64(); {
			case roll < 0.3:
				regime, regimeMult = RegimeHigh, 2.5
			case roll < 0.6:
				regime, regimeMult = RegimeLow, 0.5
			default:
				regime, regimeMult = RegimeNormal, 1.0
			}
			trend = -0.002 + rng.Float64()*0.004
		}

		todMult := 1.0
		if h := ts.Hour(); h >= 8 && h <= 16 {
			todMult = 1.5
		}
		if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
			todMult *= 0.7
		}

		vol := baseVolatility * regimeMult * todMult
		change := trend + rng.NormFloat64()*vol

		// Flash crash / pump
		if rng.Float64() < spikeChance {
			mag := 0.05 + rng.Float64()*0.10
			if rng.Float64() > 0.5 {
				change += mag
			} else {
				change -= mag
			}
		}

		price *= 1 + change

		// The bar opens and closes at the post-move price; wicks are drawn
		// around it and clamped to stay consistent.
		high := price * (1 + math.Abs(rng.NormFloat64()*vol*0.5))
		low := price * (1 - math.Abs(rng.NormFloat64()*vol*0.5))
		mean := 15 + rng.NormFloat64()*0.5
		volume := math.Exp(mean + rng.NormFloat64())

		series = append(series, Bar{
			Time:   ts,
			Open:   price,
			High:   math.Max(high, price),
			Low:    math.Min(low, price),
			Close:  price,
			Volume: volume,
			Regime: regime,
		})
	}

	log.Debug().
		Int64("seed", cfg.Seed).
		Int("bars", len(series)).
		Float64("final_price", price).
		Msg("Synthetic series generated")

	return series, nil
}

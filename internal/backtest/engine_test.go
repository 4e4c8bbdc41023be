package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/stratrun/internal/config"
	"github.com/quantpulse/stratrun/internal/indicators"
	"github.com/quantpulse/stratrun/internal/market"
	"github.com/quantpulse/stratrun/internal/signal"
)

// flatSeries builds n bars pinned at price: long enough series warm every
// indicator up without ever moving a stop or target.
func flatSeries(n int, price float64) market.Series {
	series := make(market.Series, 0, n)
	for i := 0; i < n; i++ {
		series = append(series, market.Bar{
			Time:   t0().Add(time.Duration(i) * time.Hour),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: 1000,
			Regime: market.RegimeNormal,
		})
	}
	return series
}

// declineSeries appends a geometric decline after a flat warmup
func declineSeries(flat, declining int, price, rate float64) market.Series {
	series := flatSeries(flat, price)
	p := price
	for i := 0; i < declining; i++ {
		p *= 1 - rate
		series = append(series, market.Bar{
			Time:   t0().Add(time.Duration(flat+i) * time.Hour),
			Open:   p,
			High:   p,
			Low:    p,
			Close:  p,
			Volume: 1000,
			Regime: market.RegimeNormal,
		})
	}
	return series
}

func fixedSource(series market.Series) SeriesSource {
	return SourceFunc(func(context.Context, market.GenConfig) (market.Series, error) {
		return series, nil
	})
}

// scriptedProvider votes per bar index; unscripted bars hold
type scriptedProvider struct {
	id     string
	weight float64
	conf   float64
	script map[int]int
	fail   bool
}

func (p scriptedProvider) ID() string      { return p.id }
func (p scriptedProvider) Weight() float64 { return p.weight }

func (p scriptedProvider) Score(_ context.Context, row indicators.Row) (signal.Signal, error) {
	if p.fail {
		return signal.Signal{}, errors.New("feed offline")
	}
	return signal.Signal{
		SourceID:   p.id,
		Direction:  p.script[row.Index],
		Confidence: p.conf,
	}, nil
}

// alwaysBuy votes buy on every bar
type alwaysBuy struct {
	conf float64
}

func (alwaysBuy) ID() string      { return "always_buy" }
func (alwaysBuy) Weight() float64 { return 1.0 }

func (p alwaysBuy) Score(_ context.Context, _ indicators.Row) (signal.Signal, error) {
	return signal.Signal{SourceID: "always_buy", Direction: signal.DirectionBuy, Confidence: p.conf}, nil
}

// bandProvider trades the Bollinger position so generated series produce
// organic entries and exits
type bandProvider struct{}

func (bandProvider) ID() string      { return "band" }
func (bandProvider) Weight() float64 { return 1.0 }

func (bandProvider) Score(_ context.Context, row indicators.Row) (signal.Signal, error) {
	sig := signal.Signal{SourceID: "band", Direction: signal.DirectionHold, Confidence: 0.5}
	switch {
	case row.BBPos < 0.35:
		sig.Direction, sig.Confidence = signal.DirectionBuy, 0.9
	case row.BBPos > 0.65:
		sig.Direction, sig.Confidence = signal.DirectionSell, 0.9
	}
	return sig, nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func TestRunnerDefaultProvidersNeverClearThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Days = 30

	result, err := NewRunner(cfg).Run(context.Background())
	require.NoError(t, err)

	// Three built-ins at full agreement top out below the 0.45 threshold,
	// so the stock configuration holds on every bar.
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Empty(t, result.Trades)
	assert.Equal(t, 30*24-191, result.BarsProcessed)
	assert.Len(t, result.EquityCurve, result.BarsProcessed)
	assert.InDelta(t, cfg.InitialBalance, result.FinalEquity, 1e-9)
}

func TestRunnerDeterministicTradeLog(t *testing.T) {
	run := func() *Result {
		cfg := config.Default()
		cfg.Days = 60
		cfg.ConfidenceThreshold = 0.25

		r := NewRunner(cfg)
		r.SetProviders([]signal.Provider{bandProvider{}})
		result, err := r.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()

	require.NotEmpty(t, first.Trades)

	firstLog, err := json.Marshal(first.Trades)
	require.NoError(t, err)
	secondLog, err := json.Marshal(second.Trades)
	require.NoError(t, err)
	assert.Equal(t, string(firstLog), string(secondLog))

	assert.Equal(t, first.EquityCurve, second.EquityCurve)
	assert.Equal(t, first.Status, second.Status)
}

func TestRunnerTakeProfitLifecycle(t *testing.T) {
	series := flatSeries(193, 100.0)
	for i := 193; i < 200; i++ {
		series = append(series, market.Bar{
			Time: t0().Add(time.Duration(i) * time.Hour), Open: 107, High: 107, Low: 107, Close: 107, Volume: 1000,
		})
	}

	cfg := config.Default()
	r := NewRunner(cfg)
	r.SetSeriesSource(fixedSource(series))
	r.SetProviders([]signal.Provider{scriptedProvider{
		id: "script", weight: 1.0, conf: 0.9,
		script: map[int]int{192: signal.DirectionBuy},
	}})

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	tr := result.Trades[0]
	notional := cfg.InitialBalance * cfg.RiskPerTrade * 0.9 * 0.9
	assert.Equal(t, 192, tr.EntryIndex)
	assert.InDelta(t, 100.0, tr.EntryPrice, 1e-12)
	assert.InDelta(t, notional, tr.Notional, 1e-9)
	assert.Equal(t, ExitTakeProfit, tr.ExitReason)
	assert.Equal(t, 193, tr.ExitIndex)
	assert.InDelta(t, 106.0, tr.ExitPrice, 1e-12)
	assert.InDelta(t, 0.06*notional, tr.PnL, 1e-9)
	assert.InDelta(t, 0.06, tr.ReturnPct, 1e-12)
	assert.InDelta(t, cfg.InitialBalance+0.06*notional, result.FinalEquity, 1e-6)
}

func TestRunnerEnforcesPositionCap(t *testing.T) {
	cfg := config.Default()
	cfg.MaxPositions = 2
	cfg.ConfidenceThreshold = 0.45

	r := NewRunner(cfg)
	r.SetSeriesSource(fixedSource(flatSeries(250, 100.0)))
	r.SetProviders([]signal.Provider{alwaysBuy{conf: 0.9}})

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	maxOpen := 0
	for _, pt := range result.EquityCurve {
		if pt.OpenPositions > maxOpen {
			maxOpen = pt.OpenPositions
		}
	}
	assert.Equal(t, 2, maxOpen)

	// Flat tape never trips a stop or target, so both positions ride to the
	// horizon and close flat.
	require.Len(t, result.Trades, 2)
	for _, tr := range result.Trades {
		assert.Equal(t, ExitForcedHorizon, tr.ExitReason)
		assert.Equal(t, 249, tr.ExitIndex)
		assert.InDelta(t, 0.0, tr.PnL, 1e-9)
	}
	assert.InDelta(t, cfg.InitialBalance, result.FinalEquity, 1e-6)
}

func TestRunnerSellClosesAllAndShortsAreNoOps(t *testing.T) {
	cfg := config.Default()
	cfg.ConfidenceThreshold = 0.25

	r := NewRunner(cfg)
	r.SetSeriesSource(fixedSource(flatSeries(250, 100.0)))
	r.SetProviders([]signal.Provider{scriptedProvider{
		id: "script", weight: 1.0, conf: 0.9,
		script: map[int]int{
			191: signal.DirectionBuy,
			192: signal.DirectionBuy,
			200: signal.DirectionSell,
			201: signal.DirectionSell, // flat book: nothing to close, nothing to short
		},
	}})

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	for _, tr := range result.Trades {
		assert.Equal(t, ExitSignalClose, tr.ExitReason)
		assert.Equal(t, 200, tr.ExitIndex)
	}
	assert.ElementsMatch(t, []int{191, 192}, []int{result.Trades[0].EntryIndex, result.Trades[1].EntryIndex})

	for _, pt := range result.EquityCurve {
		if pt.Index > 200 {
			assert.Zero(t, pt.OpenPositions)
		}
	}
}

func TestRunnerCapitalExhaustionStopsEarly(t *testing.T) {
	cfg := config.Default()
	cfg.RiskPerTrade = 1.0
	cfg.MaxPositions = 1

	r := NewRunner(cfg)
	r.SetSeriesSource(fixedSource(declineSeries(192, 110, 100.0, 0.05)))
	r.SetProviders([]signal.Provider{alwaysBuy{conf: 1.0}})

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCapitalExhausted, result.Status)
	assert.Less(t, result.BarsProcessed, 302-191)
	require.NotEmpty(t, result.EquityCurve)
	last := result.EquityCurve[len(result.EquityCurve)-1]
	assert.LessOrEqual(t, last.Equity, 0.10*cfg.InitialBalance+1e-6)
	assert.NotEmpty(t, result.Trades)
}

func TestRunnerCancellationYieldsPartialResult(t *testing.T) {
	cfg := config.Default()
	cfg.ConfidenceThreshold = 0.45

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRunner(cfg)
	r.SetSeriesSource(fixedSource(flatSeries(720, 100.0)))
	r.SetProviders([]signal.Provider{alwaysBuy{conf: 0.9}})

	var events []StepEvent
	r.SetStepHook(func(ev StepEvent) {
		events = append(events, ev)
		if ev.Processed == 100 {
			cancel()
		}
	})

	result, err := r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, StatusCanceled, result.Status)
	assert.Equal(t, 100, result.BarsProcessed)
	assert.Len(t, result.EquityCurve, 100)

	// The cap filled on the first three bars; cancellation closes all of it
	// at the last processed bar so the partial result is still analyzable.
	require.Len(t, result.Trades, 3)
	for _, tr := range result.Trades {
		assert.Equal(t, ExitForcedHorizon, tr.ExitReason)
		assert.Equal(t, 191+99, tr.ExitIndex)
	}

	require.Len(t, events, 100)
	assert.Equal(t, 720-191, events[0].Total)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Processed)
	}
}

func TestRunnerProviderFailureForcesHold(t *testing.T) {
	cfg := config.Default()
	cfg.ConfidenceThreshold = 0.25

	r := NewRunner(cfg)
	r.SetSeriesSource(fixedSource(flatSeries(197, 100.0)))
	r.SetProviders([]signal.Provider{
		alwaysBuy{conf: 0.9},
		scriptedProvider{id: "offline", weight: 1.0, fail: true},
	})

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	// Healthy buy votes every bar, but the failed provider forces holds.
	assert.Empty(t, result.Trades)
	assert.Equal(t, StatusCompleted, result.Status)
	require.Len(t, result.Incidents, 6)
	for i, inc := range result.Incidents {
		assert.Equal(t, "offline", inc.Provider)
		assert.Equal(t, 191+i, inc.Index)
		assert.Contains(t, inc.Error, "feed offline")
	}
}

func TestRunnerInsufficientCashSkipsEntry(t *testing.T) {
	cfg := config.Default()
	cfg.RiskPerTrade = 0.9
	cfg.MaxPositions = 3

	r := NewRunner(cfg)
	r.SetSeriesSource(fixedSource(flatSeries(200, 100.0)))
	r.SetProviders([]signal.Provider{alwaysBuy{conf: 1.0}})

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	// First entry reserves 90% of equity; later entries cannot be funded
	// and are skipped without failing the run.
	maxOpen := 0
	for _, pt := range result.EquityCurve {
		if pt.OpenPositions > maxOpen {
			maxOpen = pt.OpenPositions
		}
	}
	assert.Equal(t, 1, maxOpen)
	assert.Len(t, result.Trades, 1)
	assert.Equal(t, StatusCompleted, result.Status)
}

func TestRunnerRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.RiskPerTrade = 0

	result, err := NewRunner(cfg).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNewRunnerHonorsGuardRoster(t *testing.T) {
	cfg := config.Default()
	cfg.Guards.Disabled = []string{"rsi_ma", "vol_momentum"}
	cfg.Guards.Weights = map[string]float64{"momentum_reversion": 0.8}

	r := NewRunner(cfg)
	require.Len(t, r.providers, 1)
	assert.Equal(t, "momentum_reversion", r.providers[0].ID())
	assert.Equal(t, 0.8, r.providers[0].Weight())
}

func TestRunnerClockStampsResult(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cfg := config.Default()
	r := NewRunner(cfg)
	r.SetClock(fixedClock{now: now})
	r.SetSeriesSource(fixedSource(flatSeries(195, 100.0)))

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now, result.StartedAt)
	assert.Equal(t, now, result.FinishedAt)
	assert.NotEmpty(t, result.RunID)
}

func TestRunnerRejectsShortSeries(t *testing.T) {
	cfg := config.Default()

	r := NewRunner(cfg)
	r.SetSeriesSource(fixedSource(flatSeries(100, 100.0)))

	result, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "at least 192 bars")
}

// Package backtest runs the deterministic strategy simulation: one pass
// over an hourly series, ensemble decision per bar, close-price risk checks,
// and full accounting of every position lifecycle.
package backtest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantpulse/stratrun/internal/config"
	"github.com/quantpulse/stratrun/internal/ensemble"
	"github.com/quantpulse/stratrun/internal/indicators"
	"github.com/quantpulse/stratrun/internal/market"
	"github.com/quantpulse/stratrun/internal/signal"
	"github.com/quantpulse/stratrun/internal/telemetry"
)

// exhaustionFraction terminates a run once equity falls to this share of
// the initial balance
const exhaustionFraction = 0.10

// Clock abstracts wall time for testability
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SeriesSource supplies the bar series for a run. The default source is the
// synthetic generator; a cache or fixture can be swapped in.
type SeriesSource interface {
	Series(ctx context.Context, cfg market.GenConfig) (market.Series, error)
}

// SourceFunc adapts a function to the SeriesSource interface
type SourceFunc func(ctx context.Context, cfg market.GenConfig) (market.Series, error)

func (f SourceFunc) Series(ctx context.Context, cfg market.GenConfig) (market.Series, error) {
	return f(ctx, cfg)
}

type generatorSource struct{}

func (generatorSource) Series(_ context.Context, cfg market.GenConfig) (market.Series, error) {
	return market.Generate(cfg)
}

// StepEvent is emitted after each processed bar for progress display and
// live streaming
type StepEvent struct {
	RunID         string          `json:"run_id"`
	Index         int             `json:"index"`
	Processed     int             `json:"processed"`
	Total         int             `json:"total"`
	Time          time.Time       `json:"time"`
	Action        ensemble.Action `json:"action"`
	Equity        float64         `json:"equity"`
	Drawdown      float64         `json:"drawdown"`
	OpenPositions int             `json:"open_positions"`
	TradeCount    int             `json:"trade_count"`
}

// StepHook observes step events. It runs on the simulation goroutine, so
// implementations must not block.
type StepHook func(StepEvent)

// Runner executes one backtest over one series
type Runner struct {
	config    *config.Config
	providers []signal.Provider
	source    SeriesSource
	metrics   *telemetry.Metrics
	stepHook  StepHook
	clock     Clock
}

// NewRunner creates a runner with the default provider set behind circuit
// breakers and the synthetic generator as series source. The config's guards
// section can disable providers, reweight them, and tune the breakers.
func NewRunner(cfg *config.Config) *Runner {
	roster := signal.Without(signal.Defaults(), cfg.Guards.Disabled)
	roster = signal.Reweight(roster, cfg.Guards.Weights)

	return &Runner{
		config: cfg,
		providers: signal.GuardAllWith(roster, signal.GuardOptions{
			TripAfter: cfg.Guards.TripAfter,
			Cooldown:  time.Duration(cfg.Guards.CooldownSec) * time.Second,
		}),
		source: generatorSource{},
		clock:  realClock{},
	}
}

// SetProviders replaces the signal provider set
func (r *Runner) SetProviders(providers []signal.Provider) { r.providers = providers }

// SetSeriesSource replaces the bar series source
func (r *Runner) SetSeriesSource(source SeriesSource) { r.source = source }

// SetMetrics attaches a telemetry registry; nil disables instrumentation
func (r *Runner) SetMetrics(m *telemetry.Metrics) { r.metrics = m }

// SetStepHook attaches a per-step observer
func (r *Runner) SetStepHook(hook StepHook) { r.stepHook = hook }

// SetClock overrides wall time
func (r *Runner) SetClock(clock Clock) { r.clock = clock }

// Run executes the full simulation. Cancellation via ctx stops the loop at
// the next bar boundary and still returns a usable partial result; the only
// error paths are invalid config and unusable input data.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if errs := r.config.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}

	runID := uuid.New().String()
	startedAt := r.clock.Now()
	logger := log.With().Str("run_id", runID[:8]).Logger()

	series, err := r.obtainSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("series: %w", err)
	}

	frame, err := indicators.Compute(series)
	if err != nil {
		return nil, err
	}

	engine := ensemble.New(r.providers, r.config.ConfidenceThreshold)
	book := NewBook(r.config.MaxPositions, r.config.StopLossPct, r.config.TakeProfitPct)
	account := NewAccountant(r.config.InitialBalance)

	total := frame.Len() - frame.Start()
	logger.Info().
		Int("bars", frame.Len()).
		Int("tradable", total).
		Int("providers", len(r.providers)).
		Float64("balance", r.config.InitialBalance).
		Msg("Backtest started")

	r.metrics.RunStarted()

	var (
		status        = StatusCompleted
		incidents     []IncidentRecord
		barsProcessed int
		lastIndex     = frame.Start()
	)
	exhaustionFloor := r.config.InitialBalance * exhaustionFraction

loop:
	for i := frame.Start(); i < frame.Len(); i++ {
		select {
		case <-ctx.Done():
			status = StatusCanceled
			logger.Warn().Int("index", i).Msg("Run canceled, finalizing partial result")
			break loop
		default:
		}

		stepStart := r.clock.Now()
		bar := frame.Bars[i]
		lastIndex = i
		barsProcessed++

		// Risk exits fire before the new decision is applied
		for _, t := range book.CheckExits(i, bar.Time, bar.Close) {
			account.OnClose(t)
			r.metrics.TradeClosed(string(t.ExitReason))
			logger.Debug().
				Str("position", t.PositionID).
				Str("reason", string(t.ExitReason)).
				Float64("pnl", t.PnL).
				Msg("Risk exit")
		}

		decision := engine.Decide(ctx, frame.Row(i))
		for _, inc := range decision.Incidents {
			incidents = append(incidents, IncidentRecord{
				Index:    i,
				Time:     bar.Time,
				Provider: inc.Provider,
				Error:    inc.Error,
			})
			r.metrics.ProviderIncident(inc.Provider)
		}

		switch decision.Action {
		case ensemble.ActionBuy:
			r.tryOpen(book, account, i, bar, decision, logger)
		case ensemble.ActionSell:
			for _, t := range book.CloseAll(i, bar.Time, bar.Close, ExitSignalClose) {
				account.OnClose(t)
				r.metrics.TradeClosed(string(t.ExitReason))
			}
		}

		point := account.MarkToMarket(i, bar.Time, book.MarkValue(bar.Close), book.OpenCount())
		r.metrics.ObserveStep(r.clock.Now().Sub(stepStart).Seconds())
		r.metrics.SetEquity(point.Equity)

		if r.stepHook != nil {
			r.stepHook(StepEvent{
				RunID:         runID,
				Index:         i,
				Processed:     barsProcessed,
				Total:         total,
				Time:          bar.Time,
				Action:        decision.Action,
				Equity:        point.Equity,
				Drawdown:      point.Drawdown,
				OpenPositions: point.OpenPositions,
				TradeCount:    len(account.Trades()),
			})
		}

		if point.Equity <= exhaustionFloor {
			status = StatusCapitalExhausted
			logger.Warn().
				Float64("equity", point.Equity).
				Float64("floor", exhaustionFloor).
				Msg("Capital exhausted, stopping run")
			break
		}
	}

	// Whatever is still open gets closed at the last processed bar so every
	// run, including canceled ones, ends with a complete trade log.
	if barsProcessed > 0 && book.OpenCount() > 0 {
		finalBar := frame.Bars[lastIndex]
		for _, t := range book.CloseAll(lastIndex, finalBar.Time, finalBar.Close, ExitForcedHorizon) {
			account.OnClose(t)
			r.metrics.TradeClosed(string(t.ExitReason))
		}
	}

	finishedAt := r.clock.Now()
	finalEquity := account.Cash()
	if pts := account.Curve(); len(pts) > 0 {
		finalEquity = pts[len(pts)-1].Equity
	}

	r.metrics.RunFinished(string(status), finishedAt.Sub(startedAt).Seconds())
	logger.Info().
		Str("status", string(status)).
		Int("bars_processed", barsProcessed).
		Int("trades", len(account.Trades())).
		Float64("final_equity", finalEquity).
		Msg("Backtest finished")

	return &Result{
		RunID:         runID,
		Status:        status,
		Config:        r.config,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		BarsProcessed: barsProcessed,
		FinalEquity:   finalEquity,
		Trades:        account.Trades(),
		EquityCurve:   account.Curve(),
		Incidents:     incidents,
	}, nil
}

// tryOpen sizes a new position off current equity and confidence. Entries
// that cannot be funded from cash or exceed the position cap are skipped
// without failing the run.
func (r *Runner) tryOpen(book *Book, account *Accountant, index int, bar market.Bar, decision ensemble.Decision, logger zerolog.Logger) {
	equity := account.EquityAt(book.MarkValue(bar.Close))
	notional := equity * r.config.RiskPerTrade * decision.Confidence * decision.Confidence
	if notional <= 0 {
		return
	}
	if notional > account.Cash() {
		logger.Debug().
			Int("index", index).
			Float64("notional", notional).
			Float64("cash", account.Cash()).
			Msg("Entry skipped, insufficient cash")
		return
	}
	pos, ok := book.Open(index, bar.Time, bar.Close, notional, decision.Confidence)
	if !ok {
		logger.Debug().Int("index", index).Msg("Entry skipped, position cap reached")
		return
	}
	account.OnOpen(pos)
	r.metrics.PositionOpened()
	logger.Debug().
		Str("position", pos.ID).
		Float64("entry", pos.EntryPrice).
		Float64("notional", pos.Notional).
		Float64("confidence", pos.Confidence).
		Msg("Position opened")
}

func (r *Runner) obtainSeries(ctx context.Context) (market.Series, error) {
	if r.config.DataFile != "" {
		if strings.EqualFold(filepath.Ext(r.config.DataFile), ".csv") {
			return market.LoadCSV(r.config.DataFile)
		}
		return market.LoadJSONL(r.config.DataFile)
	}
	return r.source.Series(ctx, market.GenConfig{
		Seed:      r.config.Seed,
		Days:      r.config.Days,
		BasePrice: r.config.BasePrice,
	})
}

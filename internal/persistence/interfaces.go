// Package persistence defines the storage contracts for finished runs and
// their trade logs, plus the row types the SQL backends scan into.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/quantpulse/stratrun/internal/backtest"
	"github.com/quantpulse/stratrun/internal/perf"
)

// ErrDuplicateRun is returned when a run id is inserted twice
var ErrDuplicateRun = errors.New("run already persisted")

// TimeRange is a query window over run finish times
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// RunRecord is one persisted run with its headline metrics
type RunRecord struct {
	RunID               string    `json:"run_id" db:"run_id"`
	Status              string    `json:"status" db:"status"`
	Seed                int64     `json:"seed" db:"seed"`
	Days                int       `json:"days" db:"days"`
	InitialBalance      float64   `json:"initial_balance" db:"initial_balance"`
	RiskPerTrade        float64   `json:"risk_per_trade" db:"risk_per_trade"`
	ConfidenceThreshold float64   `json:"confidence_threshold" db:"confidence_threshold"`
	BarsProcessed       int       `json:"bars_processed" db:"bars_processed"`
	FinalEquity         float64   `json:"final_equity" db:"final_equity"`
	TotalReturn         float64   `json:"total_return" db:"total_return"`
	SharpeRatio         float64   `json:"sharpe_ratio" db:"sharpe_ratio"`
	WinRate             float64   `json:"win_rate" db:"win_rate"`
	MaxDrawdown         float64   `json:"max_drawdown" db:"max_drawdown"`
	CompositeScore      float64   `json:"composite_score" db:"composite_score"`
	Grade               string    `json:"grade" db:"grade"`
	TradeCount          int       `json:"trade_count" db:"trade_count"`
	StartedAt           time.Time `json:"started_at" db:"started_at"`
	FinishedAt          time.Time `json:"finished_at" db:"finished_at"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// TradeRecord is one persisted trade of a run
type TradeRecord struct {
	ID         int64     `json:"id" db:"id"`
	RunID      string    `json:"run_id" db:"run_id"`
	PositionID string    `json:"position_id" db:"position_id"`
	EntryIndex int       `json:"entry_index" db:"entry_index"`
	EntryTime  time.Time `json:"entry_time" db:"entry_time"`
	EntryPrice float64   `json:"entry_price" db:"entry_price"`
	ExitIndex  int       `json:"exit_index" db:"exit_index"`
	ExitTime   time.Time `json:"exit_time" db:"exit_time"`
	ExitPrice  float64   `json:"exit_price" db:"exit_price"`
	Units      float64   `json:"units" db:"units"`
	Notional   float64   `json:"notional" db:"notional"`
	PnL        float64   `json:"pnl" db:"pnl"`
	ReturnPct  float64   `json:"return_pct" db:"return_pct"`
	Confidence float64   `json:"confidence" db:"confidence"`
	ExitReason string    `json:"exit_reason" db:"exit_reason"`
	HoldBars   int       `json:"hold_bars" db:"hold_bars"`
}

// RunsRepo persists run summaries
type RunsRepo interface {
	// Insert adds a finished run; a duplicate run id yields ErrDuplicateRun
	Insert(ctx context.Context, run RunRecord) error

	// Get retrieves one run by id, nil when absent
	Get(ctx context.Context, runID string) (*RunRecord, error)

	// ListRecent retrieves the most recently finished runs
	ListRecent(ctx context.Context, limit int) ([]RunRecord, error)

	// ListByStatus retrieves runs with the given terminal status
	ListByStatus(ctx context.Context, status string, limit int) ([]RunRecord, error)

	// ListRange retrieves runs finished inside the window, newest first
	ListRange(ctx context.Context, tr TimeRange, limit int) ([]RunRecord, error)

	// BestByScore retrieves the top runs by composite score
	BestByScore(ctx context.Context, limit int) ([]RunRecord, error)

	// CountByStatus returns run counts grouped by terminal status
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// TradesRepo persists trade logs
type TradesRepo interface {
	// InsertBatch writes a run's complete trade log atomically
	InsertBatch(ctx context.Context, trades []TradeRecord) error

	// ListByRun retrieves a run's trades in entry order
	ListByRun(ctx context.Context, runID string) ([]TradeRecord, error)

	// CountByExitReason returns trade counts per exit reason for a run
	CountByExitReason(ctx context.Context, runID string) (map[string]int64, error)
}

// Repository aggregates the persistence interfaces
type Repository struct {
	Runs   RunsRepo
	Trades TradesRepo
}

// HealthCheck is the persistence layer's health status
type HealthCheck struct {
	Healthy        bool      `json:"healthy"`
	Errors         []string  `json:"errors,omitempty"`
	LastCheck      time.Time `json:"last_check"`
	ResponseTimeMS int64     `json:"response_time_ms"`
}

// RepositoryHealth monitors the storage backend
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}

// FromResult flattens a finished run and its metrics into storage rows
func FromResult(result *backtest.Result, m *perf.Metrics) (RunRecord, []TradeRecord) {
	run := RunRecord{
		RunID:               result.RunID,
		Status:              string(result.Status),
		Seed:                result.Config.Seed,
		Days:                result.Config.Days,
		InitialBalance:      result.Config.InitialBalance,
		RiskPerTrade:        result.Config.RiskPerTrade,
		ConfidenceThreshold: result.Config.ConfidenceThreshold,
		BarsProcessed:       result.BarsProcessed,
		FinalEquity:         result.FinalEquity,
		TotalReturn:         m.TotalReturn,
		SharpeRatio:         m.SharpeRatio,
		WinRate:             m.WinRate,
		MaxDrawdown:         m.MaxDrawdown,
		CompositeScore:      m.CompositeScore,
		Grade:               m.Grade,
		TradeCount:          m.TotalTrades,
		StartedAt:           result.StartedAt,
		FinishedAt:          result.FinishedAt,
	}

	trades := make([]TradeRecord, 0, len(result.Trades))
	for _, tr := range result.Trades {
		trades = append(trades, TradeRecord{
			RunID:      result.RunID,
			PositionID: tr.PositionID,
			EntryIndex: tr.EntryIndex,
			EntryTime:  tr.EntryTime,
			EntryPrice: tr.EntryPrice,
			ExitIndex:  tr.ExitIndex,
			ExitTime:   tr.ExitTime,
			ExitPrice:  tr.ExitPrice,
			Units:      tr.Units,
			Notional:   tr.Notional,
			PnL:        tr.PnL,
			ReturnPct:  tr.ReturnPct,
			Confidence: tr.Confidence,
			ExitReason: string(tr.ExitReason),
			HoldBars:   tr.HoldBars,
		})
	}
	return run, trades
}

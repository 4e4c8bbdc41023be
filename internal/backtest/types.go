package backtest

import (
	"fmt"
	"time"

	"github.com/quantpulse/stratrun/internal/config"
)

// Status is the terminal state of a run
type Status string

const (
	StatusCompleted        Status = "completed"
	StatusCanceled         Status = "canceled"
	StatusCapitalExhausted Status = "capital_exhausted"
)

// ExitReason enumerates the only ways a position leaves the book
type ExitReason string

const (
	ExitSignalClose   ExitReason = "signal_close"
	ExitStopLoss      ExitReason = "stop_loss"
	ExitTakeProfit    ExitReason = "take_profit"
	ExitForcedHorizon ExitReason = "forced_close_at_horizon"
)

// Position is one open long. Entry fields never change after Open; closing
// transitions the position exactly once and produces the Trade record.
type Position struct {
	ID              string    `json:"id"`
	EntryIndex      int       `json:"entry_index"`
	EntryTime       time.Time `json:"entry_time"`
	EntryPrice      float64   `json:"entry_price"`
	Units           float64   `json:"units"`    // base-asset amount
	Notional        float64   `json:"notional"` // quote currency at entry
	Confidence      float64   `json:"confidence"`
	StopPrice       float64   `json:"stop_price"`
	TakeProfitPrice float64   `json:"take_profit_price"`

	closed bool
}

// close is the only transition out of the open state. A second close on the
// same position is a bug in the caller, not a market condition.
func (p *Position) close(index int, ts time.Time, price float64, reason ExitReason) (Trade, error) {
	if p.closed {
		return Trade{}, fmt.Errorf("position %s closed twice", p.ID)
	}
	p.closed = true

	pnl := (price - p.EntryPrice) * p.Units
	return Trade{
		PositionID: p.ID,
		EntryIndex: p.EntryIndex,
		EntryTime:  p.EntryTime,
		EntryPrice: p.EntryPrice,
		ExitIndex:  index,
		ExitTime:   ts,
		ExitPrice:  price,
		Units:      p.Units,
		Notional:   p.Notional,
		PnL:        pnl,
		ReturnPct:  pnl / p.Notional,
		Confidence: p.Confidence,
		ExitReason: reason,
		HoldBars:   index - p.EntryIndex,
	}, nil
}

// Trade is the immutable record of one completed position lifecycle
type Trade struct {
	PositionID string     `json:"position_id"`
	EntryIndex int        `json:"entry_index"`
	EntryTime  time.Time  `json:"entry_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitIndex  int        `json:"exit_index"`
	ExitTime   time.Time  `json:"exit_time"`
	ExitPrice  float64    `json:"exit_price"`
	Units      float64    `json:"units"`
	Notional   float64    `json:"notional"`
	PnL        float64    `json:"pnl"`
	ReturnPct  float64    `json:"return_pct"`
	Confidence float64    `json:"confidence"`
	ExitReason ExitReason `json:"exit_reason"`
	HoldBars   int        `json:"hold_bars"`
}

// EquityPoint is one step of the equity/drawdown timeline
type EquityPoint struct {
	Index         int       `json:"index"`
	Time          time.Time `json:"time"`
	Equity        float64   `json:"equity"`
	Peak          float64   `json:"peak"`
	Drawdown      float64   `json:"drawdown"`
	OpenPositions int       `json:"open_positions"`
}

// IncidentRecord ties a provider failure to the step it occurred on
type IncidentRecord struct {
	Index    int       `json:"index"`
	Time     time.Time `json:"time"`
	Provider string    `json:"provider"`
	Error    string    `json:"error"`
}

// Result is everything one run produces. Trades and the equity curve are
// serialized to their own artifacts, not embedded in the result document.
type Result struct {
	RunID         string         `json:"run_id"`
	Status        Status         `json:"status"`
	Config        *config.Config `json:"config"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	BarsProcessed int            `json:"bars_processed"`
	FinalEquity   float64        `json:"final_equity"`

	Trades      []Trade          `json:"-"`
	EquityCurve []EquityPoint    `json:"-"`
	Incidents   []IncidentRecord `json:"incidents,omitempty"`
}

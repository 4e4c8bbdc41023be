// Package signal defines the provider contract the ensemble scores with,
// the built-in providers, and the circuit-breaker guard that isolates a
// misbehaving provider from the run.
package signal

import (
	"context"
	"fmt"

	"github.com/quantpulse/stratrun/internal/indicators"
)

// Direction of a signal
const (
	DirectionSell = -1
	DirectionHold = 0
	DirectionBuy  = 1
)

// Signal is one provider's vote for a single bar
type Signal struct {
	SourceID   string  `json:"source_id"`
	Direction  int     `json:"direction"`  // -1 sell, 0 neutral, +1 buy
	Confidence float64 `json:"confidence"` // [0,1]
	Rationale  string  `json:"rationale,omitempty"`
}

// Validate rejects signals outside the contract
func (s Signal) Validate() error {
	if s.Direction != DirectionSell && s.Direction != DirectionHold && s.Direction != DirectionBuy {
		return fmt.Errorf("signal %s: direction %d outside {-1,0,+1}", s.SourceID, s.Direction)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal %s: confidence %.4f outside [0,1]", s.SourceID, s.Confidence)
	}
	return nil
}

// Provider scores one indicator row. Implementations must be deterministic
// for a given row; the engine feeds rows strictly in order.
type Provider interface {
	ID() string
	Weight() float64
	Score(ctx context.Context, row indicators.Row) (Signal, error)
}

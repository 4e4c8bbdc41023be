// Package ensemble fuses provider signals into one trading action per bar
// with confidence-weighted voting.
package ensemble

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/quantpulse/stratrun/internal/indicators"
	"github.com/quantpulse/stratrun/internal/signal"
)

// Action is the fused trading decision for one bar
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// scoreGate is the minimum absolute ensemble score to act. Strict
// inequality: a score of exactly ±0.2 holds.
const scoreGate = 0.2

// Incident records a provider whose signal was unusable this step
type Incident struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

// Decision is the fused output for one bar
type Decision struct {
	Action     Action          `json:"action"`
	Score      float64         `json:"score"`           // signed, [-1,+1]
	Strength   float64         `json:"signal_strength"` // |score|
	Confidence float64         `json:"confidence"`
	Signals    []signal.Signal `json:"signals"`
	Incidents  []Incident      `json:"incidents,omitempty"`
}

// Engine holds an ordered provider list and the confidence threshold.
// Fusion never inspects positions or balances; capital allocation stays
// fully separate from signal aggregation.
type Engine struct {
	providers []signal.Provider
	threshold float64
}

// New creates an ensemble engine over the given providers
func New(providers []signal.Provider, confidenceThreshold float64) *Engine {
	return &Engine{providers: providers, threshold: confidenceThreshold}
}

// Providers returns the registered provider count
func (e *Engine) Providers() int {
	return len(e.providers)
}

// Decide queries every provider in registration order and fuses the result.
// Any provider error forces the step to hold: a partially scored bar must
// not move capital. The incident is recorded and the run continues.
func (e *Engine) Decide(ctx context.Context, row indicators.Row) Decision {
	signals := make([]signal.Signal, 0, len(e.providers))
	weights := make([]float64, 0, len(e.providers))
	var incidents []Incident

	for _, p := range e.providers {
		sig, err := p.Score(ctx, row)
		if err != nil {
			incidents = append(incidents, Incident{Provider: p.ID(), Error: err.Error()})
			log.Warn().
				Err(err).
				Str("provider", p.ID()).
				Int("bar", row.Index).
				Msg("Provider signal unusable, step forced to hold")
			continue
		}
		signals = append(signals, sig)
		weights = append(weights, p.Weight()*sig.Confidence)
	}

	decision := e.fuse(signals, weights)
	decision.Incidents = incidents
	if len(incidents) > 0 {
		decision.Action = ActionHold
	}
	return decision
}

// fuse computes the weighted vote. Effective weight per signal is the
// provider's structural weight times its reported confidence; the score is
// the weighted average of directions and the aggregate confidence is the
// mean effective weight over all registered providers.
func (e *Engine) fuse(signals []signal.Signal, weights []float64) Decision {
	totalWeight := 0.0
	weightedSum := 0.0
	for i, sig := range signals {
		totalWeight += weights[i]
		weightedSum += float64(sig.Direction) * weights[i]
	}

	var score, confidence float64
	if totalWeight > 0 {
		score = weightedSum / totalWeight
		confidence = totalWeight / float64(len(e.providers))
	} else {
		score = 0
		confidence = 0.5
	}

	action := ActionHold
	switch {
	case score > scoreGate && confidence > e.threshold:
		action = ActionBuy
	case score < -scoreGate && confidence > e.threshold:
		action = ActionSell
	}

	return Decision{
		Action:     action,
		Score:      score,
		Strength:   math.Abs(score),
		Confidence: confidence,
		Signals:    signals,
	}
}

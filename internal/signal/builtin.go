package signal

import (
	"context"

	"github.com/quantpulse/stratrun/internal/indicators"
)

// The three built-in providers mirror the production strategy heads: an
// RSI/moving-average head, a momentum/mean-reversion head, and a
// volatility-adjusted momentum head.

// RSIMA trades RSI extremes filtered by the fast/slow MA relationship
type RSIMA struct{}

func (RSIMA) ID() string      { return "rsi_ma" }
func (RSIMA) Weight() float64 { return 0.3 }

func (RSIMA) Score(_ context.Context, row indicators.Row) (Signal, error) {
	sig := Signal{SourceID: "rsi_ma", Direction: DirectionHold, Confidence: 0.6}

	switch {
	case row.RSI14 < 30 && row.CrossUp:
		sig.Direction = DirectionBuy
		sig.Confidence = 0.8
		sig.Rationale = "oversold with fast MA above slow"
	case row.RSI14 > 70 && !row.CrossUp:
		sig.Direction = DirectionSell
		sig.Confidence = 0.8
		sig.Rationale = "overbought with fast MA below slow"
	}

	return sig, nil
}

// MomentumReversion buys dips in uptrends and sells rallies in downtrends,
// using trend strength against the Bollinger position
type MomentumReversion struct{}

func (MomentumReversion) ID() string      { return "momentum_reversion" }
func (MomentumReversion) Weight() float64 { return 0.4 }

func (MomentumReversion) Score(_ context.Context, row indicators.Row) (Signal, error) {
	sig := Signal{SourceID: "momentum_reversion", Direction: DirectionHold, Confidence: 0.7}

	switch {
	case row.TrendStrength > 0.02 && row.BBPos < 0.2:
		sig.Direction = DirectionBuy
		sig.Confidence = 0.85
		sig.Rationale = "dip near lower band in uptrend"
	case row.TrendStrength < -0.02 && row.BBPos > 0.8:
		sig.Direction = DirectionSell
		sig.Confidence = 0.85
		sig.Rationale = "rally near upper band in downtrend"
	}

	return sig, nil
}

// VolMomentum scores trend strength normalized by realized volatility
type VolMomentum struct{}

func (VolMomentum) ID() string      { return "vol_momentum" }
func (VolMomentum) Weight() float64 { return 0.3 }

func (VolMomentum) Score(_ context.Context, row indicators.Row) (Signal, error) {
	sig := Signal{SourceID: "vol_momentum", Direction: DirectionHold, Confidence: 0.75}

	volAdjusted := row.TrendStrength / (row.Volatility + 0.01)
	switch {
	case volAdjusted > 1.0:
		sig.Direction = DirectionBuy
		sig.Confidence = 0.9
		sig.Rationale = "strong vol-adjusted momentum"
	case volAdjusted < -1.0:
		sig.Direction = DirectionSell
		sig.Confidence = 0.9
		sig.Rationale = "strong vol-adjusted downside momentum"
	}

	return sig, nil
}

// Defaults returns the standard provider set in registration order
func Defaults() []Provider {
	return []Provider{RSIMA{}, MomentumReversion{}, VolMomentum{}}
}

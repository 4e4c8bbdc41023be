// Package perf turns a finished run into its performance metrics document:
// trade statistics, risk measures, the composite score with letter grade,
// and the comparison against a fixed baseline scorecard.
package perf

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/quantpulse/stratrun/internal/backtest"
)

// DegenerateNote marks a run that never traded. Downstream tooling matches
// on this string, so it never changes.
const DegenerateNote = "No trades executed - insufficient signal confidence"

// JSONFloat marshals non-finite values as quoted strings so a metrics
// document with an infinite profit factor is still valid JSON.
type JSONFloat float64

func (f JSONFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-inf"`), nil
	case math.IsNaN(v):
		return []byte(`"nan"`), nil
	}
	return json.Marshal(v)
}

func (f *JSONFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch s {
	case "inf", "+inf", "Infinity":
		*f = JSONFloat(math.Inf(1))
		return nil
	case "-inf", "-Infinity":
		*f = JSONFloat(math.Inf(-1))
		return nil
	case "nan", "NaN":
		*f = JSONFloat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("jsonfloat: %w", err)
	}
	*f = JSONFloat(v)
	return nil
}

// ConfidenceStats describes the confidence distribution of executed trades
type ConfidenceStats struct {
	Mean      float64 `json:"mean"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Std       float64 `json:"std"`
	HighCount int     `json:"high_count"` // confidence above 0.8
	LowCount  int     `json:"low_count"`  // confidence below 0.5
}

// Metrics is the full performance document for one run
type Metrics struct {
	RunID  string           `json:"run_id"`
	Status backtest.Status  `json:"status"`

	InitialBalance float64 `json:"initial_balance"`
	FinalEquity    float64 `json:"final_equity"`
	TotalReturn    float64 `json:"total_return"`
	TotalPnL       float64 `json:"total_pnl"`

	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`

	ProfitFactor JSONFloat `json:"profit_factor"`
	SharpeRatio  float64   `json:"sharpe_ratio"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	Volatility   float64   `json:"volatility"`

	AvgTradeReturn     float64 `json:"avg_trade_return"`
	BestTrade          float64 `json:"best_trade"`
	WorstTrade         float64 `json:"worst_trade"`
	AvgHoldBars        float64 `json:"avg_hold_bars"`
	ConfWeightedReturn float64 `json:"confidence_weighted_return"`
	RiskAdjustedReturn float64 `json:"risk_adjusted_return"`

	StopLossRate   float64 `json:"stop_loss_rate"`
	TakeProfitRate float64 `json:"take_profit_rate"`

	ByExitReason map[string]int  `json:"by_exit_reason"`
	TradesByHour map[int]int     `json:"trades_by_hour"`
	Confidence   ConfidenceStats `json:"confidence"`

	CompositeScore float64 `json:"composite_score"`
	Grade          string  `json:"grade"`
	Note           string  `json:"note,omitempty"`
}

// Summarize computes the full metrics document for a run. A run with zero
// trades yields the degenerate document: zeroed statistics, score 0, grade
// D, and the canonical note. Summarize never mutates the result.
func Summarize(result *backtest.Result) *Metrics {
	m := &Metrics{
		RunID:          result.RunID,
		Status:         result.Status,
		InitialBalance: result.Config.InitialBalance,
		FinalEquity:    result.FinalEquity,
		ByExitReason:   map[string]int{},
		TradesByHour:   map[int]int{},
	}

	if len(result.Trades) == 0 {
		m.Grade = "D"
		m.Note = DegenerateNote
		return m
	}

	trades := result.Trades
	m.TotalTrades = len(trades)
	m.TotalReturn = (result.FinalEquity - m.InitialBalance) / m.InitialBalance

	returns := make([]float64, len(trades))
	var (
		grossWin, grossLoss float64
		confSum, confRetSum float64
		holdSum             int
	)
	m.BestTrade = math.Inf(-1)
	m.WorstTrade = math.Inf(1)

	for i, tr := range trades {
		returns[i] = tr.ReturnPct
		m.TotalPnL += tr.PnL

		if tr.PnL > 0 {
			m.Wins++
			grossWin += tr.PnL
		} else {
			m.Losses++
			grossLoss += tr.PnL
		}

		if tr.ReturnPct > m.BestTrade {
			m.BestTrade = tr.ReturnPct
		}
		if tr.ReturnPct < m.WorstTrade {
			m.WorstTrade = tr.ReturnPct
		}

		confSum += tr.Confidence
		confRetSum += tr.Confidence * tr.ReturnPct
		holdSum += tr.HoldBars

		m.ByExitReason[string(tr.ExitReason)]++
		m.TradesByHour[tr.ExitTime.Hour()]++
	}

	m.WinRate = float64(m.Wins) / float64(m.TotalTrades)
	if m.Wins > 0 {
		m.AvgWin = grossWin / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = grossLoss / float64(m.Losses)
	}
	m.AvgTradeReturn = mean(returns)
	m.AvgHoldBars = float64(holdSum) / float64(m.TotalTrades)

	switch {
	case grossLoss == 0 && grossWin > 0:
		m.ProfitFactor = JSONFloat(math.Inf(1))
	case grossLoss == 0:
		m.ProfitFactor = 0
	default:
		m.ProfitFactor = JSONFloat(math.Abs(grossWin / grossLoss))
	}

	m.Volatility = popStd(returns)
	if m.Volatility > 0 {
		m.SharpeRatio = m.AvgTradeReturn / m.Volatility
	}

	for _, pt := range result.EquityCurve {
		if pt.Drawdown > m.MaxDrawdown {
			m.MaxDrawdown = pt.Drawdown
		}
	}

	if confSum > 0 {
		m.ConfWeightedReturn = confRetSum / confSum
	}
	m.RiskAdjustedReturn = m.TotalReturn / (m.MaxDrawdown + 0.01)

	m.StopLossRate = float64(m.ByExitReason[string(backtest.ExitStopLoss)]) / float64(m.TotalTrades)
	m.TakeProfitRate = float64(m.ByExitReason[string(backtest.ExitTakeProfit)]) / float64(m.TotalTrades)

	m.Confidence = confidenceStats(trades)

	m.CompositeScore = composite(m.SharpeRatio, m.WinRate, m.MaxDrawdown)
	m.Grade = gradeFor(m.CompositeScore)
	return m
}

// composite maps sharpe, hit rate and drawdown onto a 0..100 score
func composite(sharpe, winRate, maxDrawdown float64) float64 {
	score := 50 + 10*sharpe + 30*winRate - 100*maxDrawdown
	return math.Min(100, math.Max(0, score))
}

func gradeFor(score float64) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 85:
		return "A"
	case score >= 80:
		return "A-"
	case score >= 75:
		return "B+"
	case score >= 70:
		return "B"
	case score >= 65:
		return "B-"
	case score >= 60:
		return "C+"
	case score >= 55:
		return "C"
	case score >= 50:
		return "C-"
	default:
		return "D"
	}
}

func confidenceStats(trades []backtest.Trade) ConfidenceStats {
	stats := ConfidenceStats{Min: math.Inf(1), Max: math.Inf(-1)}
	confs := make([]float64, len(trades))
	for i, tr := range trades {
		confs[i] = tr.Confidence
		if tr.Confidence < stats.Min {
			stats.Min = tr.Confidence
		}
		if tr.Confidence > stats.Max {
			stats.Max = tr.Confidence
		}
		if tr.Confidence > 0.8 {
			stats.HighCount++
		}
		if tr.Confidence < 0.5 {
			stats.LowCount++
		}
	}
	stats.Mean = mean(confs)
	stats.Std = popStd(confs)
	return stats
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// popStd is the population standard deviation (no Bessel correction), the
// same convention the metrics have always used
func popStd(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mu := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// Package indicators computes the per-bar technical features the signal
// providers consume. A Frame is computed once per series, column-oriented,
// and served to the engine as cheap read-only row views.
package indicators

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/quantpulse/stratrun/internal/market"
)

// Window lengths. The slowest column is the volatility percentile rank: the
// volatility column needs 24 return observations and the rank another full
// 168-bar window on top, so the first fully valid row is index 191.
const (
	RSIPeriod        = 14
	MAFastPeriod     = 10
	MASlowPeriod     = 30
	MACDFastSpan     = 12
	MACDSlowSpan     = 26
	MACDSignalSpan   = 9
	BollingerPeriod  = 20
	BollingerWidth   = 2.0
	VolatilityPeriod = 24
	ATRPeriod        = 14
	TrendPeriod      = 48
	VolRankPeriod    = 168

	// MinBars is the shortest series Compute accepts
	MinBars = VolatilityPeriod + VolRankPeriod
)

// Frame holds every indicator column for a series. Columns are NaN during
// warmup; Start reports the first row where all of them are valid.
type Frame struct {
	Bars market.Series

	RSI14   []float64
	MA10    []float64
	MA30    []float64
	CrossUp []bool

	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64

	BBMid   []float64
	BBUpper []float64
	BBLower []float64
	BBPos   []float64

	Volatility []float64
	ATR14      []float64

	TrendStrength []float64
	VolRank       []float64

	start int
}

// Row is a read-only view of one frame index. Providers receive rows by
// value and cannot reach back into the frame.
type Row struct {
	Index int
	Bar   market.Bar

	RSI14   float64
	MA10    float64
	MA30    float64
	CrossUp bool

	MACD       float64
	MACDSignal float64
	MACDHist   float64

	BBMid   float64
	BBUpper float64
	BBLower float64
	BBPos   float64

	Volatility float64
	ATR14      float64

	TrendStrength float64
	VolRank       float64
}

// Compute builds the full indicator frame for a series. It fails fast on
// series too short to warm every column up.
func Compute(series market.Series) (*Frame, error) {
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("indicators: %w", err)
	}
	if series.Len() < MinBars {
		return nil, fmt.Errorf("indicators: need at least %d bars, got %d", MinBars, series.Len())
	}

	n := series.Len()
	closes := series.Closes()

	f := &Frame{Bars: series}

	f.computeRSI(closes)
	f.computeMAs(closes)
	f.computeMACD(closes)
	f.computeBollinger(closes)
	f.computeVolatility(closes)
	f.computeATR(series)
	f.TrendStrength = pctChange(closes, TrendPeriod)
	f.VolRank = rollingPctRank(f.Volatility, VolRankPeriod)

	f.start = f.findStart(n)
	if f.start < 0 {
		return nil, fmt.Errorf("indicators: no fully valid row in %d bars", n)
	}

	log.Debug().
		Int("bars", n).
		Int("start", f.start).
		Msg("Indicator frame computed")

	return f, nil
}

func (f *Frame) computeRSI(closes []float64) {
	n := len(closes)
	delta := diff(closes)

	gains := nanSlice(n)
	losses := nanSlice(n)
	for i := 1; i < n; i++ {
		gains[i] = math.Max(delta[i], 0)
		losses[i] = math.Max(-delta[i], 0)
	}

	avgGain := rollingMean(gains, RSIPeriod)
	avgLoss := rollingMean(losses, RSIPeriod)

	f.RSI14 = nanSlice(n)
	for i := range closes {
		g, l := avgGain[i], avgLoss[i]
		switch {
		case math.IsNaN(g) || math.IsNaN(l):
			// warmup
		case l == 0 && g == 0:
			f.RSI14[i] = 50
		case l == 0:
			f.RSI14[i] = 100
		default:
			f.RSI14[i] = 100 - 100/(1+g/l)
		}
	}
}

func (f *Frame) computeMAs(closes []float64) {
	f.MA10 = rollingMean(closes, MAFastPeriod)
	f.MA30 = rollingMean(closes, MASlowPeriod)

	f.CrossUp = make([]bool, len(closes))
	for i := range closes {
		f.CrossUp[i] = f.MA10[i] > f.MA30[i] // false while either is NaN
	}
}

func (f *Frame) computeMACD(closes []float64) {
	fast := emaAdjusted(closes, MACDFastSpan)
	slow := emaAdjusted(closes, MACDSlowSpan)

	n := len(closes)
	f.MACD = nanSlice(n)
	for i := 0; i < n; i++ {
		f.MACD[i] = fast[i] - slow[i]
	}

	f.MACDSignal = emaAdjusted(f.MACD, MACDSignalSpan)

	f.MACDHist = nanSlice(n)
	for i := 0; i < n; i++ {
		f.MACDHist[i] = f.MACD[i] - f.MACDSignal[i]
	}
}

func (f *Frame) computeBollinger(closes []float64) {
	n := len(closes)
	f.BBMid = rollingMean(closes, BollingerPeriod)
	std := rollingStd(closes, BollingerPeriod)

	f.BBUpper = nanSlice(n)
	f.BBLower = nanSlice(n)
	f.BBPos = nanSlice(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(f.BBMid[i]) || math.IsNaN(std[i]) {
			continue
		}
		f.BBUpper[i] = f.BBMid[i] + BollingerWidth*std[i]
		f.BBLower[i] = f.BBMid[i] - BollingerWidth*std[i]

		width := f.BBUpper[i] - f.BBLower[i]
		if width == 0 {
			f.BBPos[i] = 0.5
		} else {
			f.BBPos[i] = (closes[i] - f.BBLower[i]) / width
		}
	}
}

func (f *Frame) computeVolatility(closes []float64) {
	returns := pctChange(closes, 1)
	f.Volatility = rollingStd(returns, VolatilityPeriod)
}

func (f *Frame) computeATR(series market.Series) {
	n := series.Len()
	tr := nanSlice(n)
	for i := 0; i < n; i++ {
		bar := series[i]
		hl := bar.High - bar.Low
		if i == 0 {
			tr[i] = hl
			continue
		}
		prevClose := series[i-1].Close
		tr[i] = math.Max(hl, math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
	}
	f.ATR14 = rollingMean(tr, ATRPeriod)
}

func (f *Frame) findStart(n int) int {
	for i := 0; i < n; i++ {
		if f.rowValid(i) {
			return i
		}
	}
	return -1
}

func (f *Frame) rowValid(i int) bool {
	for _, col := range [][]float64{
		f.RSI14, f.MA10, f.MA30,
		f.MACD, f.MACDSignal, f.MACDHist,
		f.BBMid, f.BBUpper, f.BBLower, f.BBPos,
		f.Volatility, f.ATR14,
		f.TrendStrength, f.VolRank,
	} {
		if math.IsNaN(col[i]) {
			return false
		}
	}
	return true
}

// Len returns the number of rows in the frame
func (f *Frame) Len() int {
	return f.Bars.Len()
}

// Start returns the first fully valid row index
func (f *Frame) Start() int {
	return f.start
}

// Row returns the read-only view of index i
func (f *Frame) Row(i int) Row {
	return Row{
		Index:         i,
		Bar:           f.Bars[i],
		RSI14:         f.RSI14[i],
		MA10:          f.MA10[i],
		MA30:          f.MA30[i],
		CrossUp:       f.CrossUp[i],
		MACD:          f.MACD[i],
		MACDSignal:    f.MACDSignal[i],
		MACDHist:      f.MACDHist[i],
		BBMid:         f.BBMid[i],
		BBUpper:       f.BBUpper[i],
		BBLower:       f.BBLower[i],
		BBPos:         f.BBPos[i],
		Volatility:    f.Volatility[i],
		ATR14:         f.ATR14[i],
		TrendStrength: f.TrendStrength[i],
		VolRank:       f.VolRank[i],
	}
}

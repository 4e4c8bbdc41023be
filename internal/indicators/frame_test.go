package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/stratrun/internal/market"
)

func seriesFromCloses(closes []float64) market.Series {
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	series := make(market.Series, len(closes))
	for i, c := range closes {
		series[i] = market.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c * 1.001,
			Low:    c * 0.999,
			Close:  c,
			Volume: 1000,
		}
	}
	return series
}

func rampCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestComputeRejectsShortSeries(t *testing.T) {
	series := seriesFromCloses(rampCloses(MinBars-1, 100, 0.1))
	_, err := Compute(series)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least")
}

func TestComputeRejectsInvalidSeries(t *testing.T) {
	series := seriesFromCloses(rampCloses(MinBars, 100, 0.1))
	series[5].Close = -1
	_, err := Compute(series)
	require.Error(t, err)
}

func TestFrameWarmup(t *testing.T) {
	cfg := market.DefaultGenConfig()
	cfg.Days = 30
	series, err := market.Generate(cfg)
	require.NoError(t, err)

	frame, err := Compute(series)
	require.NoError(t, err)

	// Volatility needs 24 returns, the percentile rank a further 168 values
	assert.Equal(t, 191, frame.Start())
	assert.Equal(t, series.Len(), frame.Len())

	for i := frame.Start(); i < frame.Len(); i++ {
		row := frame.Row(i)
		assert.False(t, math.IsNaN(row.RSI14), "RSI NaN at %d", i)
		assert.False(t, math.IsNaN(row.BBPos), "BBPos NaN at %d", i)
		assert.False(t, math.IsNaN(row.Volatility), "Volatility NaN at %d", i)
		assert.False(t, math.IsNaN(row.TrendStrength), "TrendStrength NaN at %d", i)
		assert.False(t, math.IsNaN(row.VolRank), "VolRank NaN at %d", i)

		assert.GreaterOrEqual(t, row.RSI14, 0.0)
		assert.LessOrEqual(t, row.RSI14, 100.0)
		assert.Greater(t, row.VolRank, 0.0)
		assert.LessOrEqual(t, row.VolRank, 1.0)
		assert.GreaterOrEqual(t, row.ATR14, 0.0)
	}

	// Pre-warmup rows must not be valid
	assert.True(t, math.IsNaN(frame.VolRank[frame.Start()-1]))
}

func TestFrameAcceptsExactlyMinBars(t *testing.T) {
	cfg := market.DefaultGenConfig()
	cfg.Days = MinBars / 24
	series, err := market.Generate(cfg)
	require.NoError(t, err)
	require.Equal(t, MinBars, series.Len())

	frame, err := Compute(series)
	require.NoError(t, err)
	assert.Equal(t, MinBars-1, frame.Start())
}

func TestRSIExtremes(t *testing.T) {
	t.Run("steady gains pin RSI at 100", func(t *testing.T) {
		frame, err := Compute(seriesFromCloses(rampCloses(MinBars, 100, 1)))
		require.NoError(t, err)
		assert.InDelta(t, 100.0, frame.RSI14[frame.Start()], 1e-9)
	})

	t.Run("steady losses pin RSI at 0", func(t *testing.T) {
		frame, err := Compute(seriesFromCloses(rampCloses(MinBars, 1000, -1)))
		require.NoError(t, err)
		assert.InDelta(t, 0.0, frame.RSI14[frame.Start()], 1e-9)
	})
}

func TestFlatSeriesConventions(t *testing.T) {
	closes := make([]float64, MinBars)
	for i := range closes {
		closes[i] = 100
	}
	frame, err := Compute(seriesFromCloses(closes))
	require.NoError(t, err)

	i := frame.Start()
	assert.InDelta(t, 50.0, frame.RSI14[i], 1e-9, "flat closes give neutral RSI")
	assert.InDelta(t, 0.5, frame.BBPos[i], 1e-9, "zero-width bands give mid position")
	assert.InDelta(t, 0.0, frame.Volatility[i], 1e-9)
	assert.InDelta(t, 0.0, frame.TrendStrength[i], 1e-9)
}

func TestMACrossover(t *testing.T) {
	frame, err := Compute(seriesFromCloses(rampCloses(MinBars, 100, 1)))
	require.NoError(t, err)

	// In a steady uptrend the fast average sits above the slow one
	assert.True(t, frame.CrossUp[frame.Start()])

	down, err := Compute(seriesFromCloses(rampCloses(MinBars, 1000, -1)))
	require.NoError(t, err)
	assert.False(t, down.CrossUp[down.Start()])
}

func TestTrendStrength(t *testing.T) {
	frame, err := Compute(seriesFromCloses(rampCloses(MinBars, 100, 1)))
	require.NoError(t, err)

	i := frame.Start()
	closes := frame.Bars.Closes()
	expected := closes[i]/closes[i-TrendPeriod] - 1
	assert.InDelta(t, expected, frame.TrendStrength[i], 1e-12)
}

func TestATRConstantRange(t *testing.T) {
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	series := make(market.Series, MinBars)
	for i := range series {
		series[i] = market.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   100,
			High:   101,
			Low:    99,
			Close:  100,
			Volume: 1000,
		}
	}

	frame, err := Compute(series)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, frame.ATR14[frame.Start()], 1e-9)
}

func TestMACDUptrendPositive(t *testing.T) {
	frame, err := Compute(seriesFromCloses(rampCloses(MinBars, 100, 1)))
	require.NoError(t, err)

	i := frame.Start()
	assert.Greater(t, frame.MACD[i], 0.0, "fast EMA leads in an uptrend")
	assert.InDelta(t, frame.MACD[i]-frame.MACDSignal[i], frame.MACDHist[i], 1e-12)
}

func TestComputeIsPure(t *testing.T) {
	cfg := market.DefaultGenConfig()
	cfg.Days = 10
	series, err := market.Generate(cfg)
	require.NoError(t, err)

	a, err := Compute(series)
	require.NoError(t, err)
	b, err := Compute(series)
	require.NoError(t, err)

	require.Equal(t, a.Start(), b.Start())
	for i := a.Start(); i < a.Len(); i++ {
		assert.Equal(t, a.Row(i), b.Row(i), "row %d differs", i)
	}
}

package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollingMean(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	out := rollingMean(values, 3)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-12)
	assert.InDelta(t, 3.0, out[3], 1e-12)
	assert.InDelta(t, 4.0, out[4], 1e-12)
}

func TestRollingMeanPropagatesNaN(t *testing.T) {
	values := []float64{math.NaN(), 1, 2, 3}
	out := rollingMean(values, 2)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]), "window touching NaN must stay NaN")
	assert.InDelta(t, 1.5, out[2], 1e-12)
	assert.InDelta(t, 2.5, out[3], 1e-12)
}

func TestRollingStdSample(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	out := rollingStd(values, 3)

	assert.True(t, math.IsNaN(out[1]))
	// sample std of {1,2,3} and {2,3,4} is exactly 1
	assert.InDelta(t, 1.0, out[2], 1e-12)
	assert.InDelta(t, 1.0, out[3], 1e-12)
}

func TestEmaAdjusted(t *testing.T) {
	// span 2 => alpha 2/3; adjusted weighting gives 1, 7/4, 34/13
	out := emaAdjusted([]float64{1, 2, 3}, 2)

	assert.InDelta(t, 1.0, out[0], 1e-12)
	assert.InDelta(t, 1.75, out[1], 1e-12)
	assert.InDelta(t, 34.0/13.0, out[2], 1e-12)
}

func TestRollingPctRank(t *testing.T) {
	t.Run("monotonic window ranks last at 1", func(t *testing.T) {
		values := []float64{1, 2, 3, 4}
		out := rollingPctRank(values, 4)
		assert.InDelta(t, 1.0, out[3], 1e-12)
	})

	t.Run("minimum ranks at 1/window", func(t *testing.T) {
		values := []float64{4, 3, 2, 1}
		out := rollingPctRank(values, 4)
		assert.InDelta(t, 0.25, out[3], 1e-12)
	})

	t.Run("ties use average rank", func(t *testing.T) {
		values := []float64{2, 1, 2, 2}
		out := rollingPctRank(values, 4)
		// sorted {1,2,2,2}: tied ranks 2,3,4 average to 3 => 3/4
		assert.InDelta(t, 0.75, out[3], 1e-12)
	})
}

func TestPctChange(t *testing.T) {
	values := []float64{100, 110, 121}
	out := pctChange(values, 1)

	assert.True(t, math.IsNaN(out[0]))
	assert.InDelta(t, 0.10, out[1], 1e-12)
	assert.InDelta(t, 0.10, out[2], 1e-12)

	lag2 := pctChange(values, 2)
	assert.True(t, math.IsNaN(lag2[1]))
	assert.InDelta(t, 0.21, lag2[2], 1e-12)
}

func TestDiff(t *testing.T) {
	out := diff([]float64{5, 7, 4})
	assert.True(t, math.IsNaN(out[0]))
	assert.InDelta(t, 2.0, out[1], 1e-12)
	assert.InDelta(t, -3.0, out[2], 1e-12)
}

package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountantCashFlows(t *testing.T) {
	a := NewAccountant(100000)
	b := NewBook(3, 0.03, 0.06)

	p, ok := b.Open(0, t0(), 100.0, 40000.0, 0.8)
	require.True(t, ok)
	a.OnOpen(p)
	assert.InDelta(t, 60000.0, a.Cash(), 1e-9)

	trades := b.CheckExits(5, t0().Add(5*time.Hour), 107.0)
	require.Len(t, trades, 1)
	a.OnClose(trades[0])

	// Notional plus 6% comes back to cash
	assert.InDelta(t, 100000.0+0.06*40000.0, a.Cash(), 1e-6)
	assert.Len(t, a.Trades(), 1)
}

func TestAccountantDrawdownFromPeak(t *testing.T) {
	a := NewAccountant(100000)
	b := NewBook(1, 0.03, 0.06)

	p, ok := b.Open(0, t0(), 100.0, 50000.0, 0.9)
	require.True(t, ok)
	a.OnOpen(p)

	// Book marks at 120 first: equity 110000 becomes the peak
	pt := a.MarkToMarket(0, t0(), b.MarkValue(120.0), 1)
	assert.InDelta(t, 110000.0, pt.Equity, 1e-6)
	assert.Zero(t, pt.Drawdown)

	// Then at 90: equity 95000, drawdown measured against the 110000 peak
	pt = a.MarkToMarket(1, t0().Add(time.Hour), b.MarkValue(90.0), 1)
	assert.InDelta(t, 95000.0, pt.Equity, 1e-6)
	assert.InDelta(t, 110000.0, pt.Peak, 1e-6)
	assert.InDelta(t, 0.1364, pt.Drawdown, 1e-4)
}

func TestAccountantPeakNeverFalls(t *testing.T) {
	a := NewAccountant(1000)

	marks := []float64{100, 300, 50, 200, 400, 10}
	for i, m := range marks {
		a.MarkToMarket(i, t0().Add(time.Duration(i)*time.Hour), m, 0)
	}

	curve := a.Curve()
	require.Len(t, curve, len(marks))
	prevPeak := 0.0
	for _, pt := range curve {
		assert.GreaterOrEqual(t, pt.Peak, prevPeak)
		assert.GreaterOrEqual(t, pt.Peak, pt.Equity)
		assert.GreaterOrEqual(t, pt.Drawdown, 0.0)
		prevPeak = pt.Peak
	}
	assert.InDelta(t, 1400.0, curve[len(curve)-1].Peak, 1e-9)
}

func TestAccountantEquityAt(t *testing.T) {
	a := NewAccountant(5000)
	assert.InDelta(t, 5000.0, a.EquityAt(0), 1e-12)
	assert.InDelta(t, 7500.0, a.EquityAt(2500), 1e-12)
}

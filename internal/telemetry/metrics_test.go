package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	m.RunStarted()
	m.RunFinished("completed", 1.5)
	m.ObserveStep(0.001)
	m.PositionOpened()
	m.TradeClosed("take_profit")
	m.ProviderIncident("momentum")
	m.SetEquity(100000)

	assert.Nil(t, m.Registry())
	assert.Zero(t, m.RunCount("completed"))
	assert.Zero(t, m.TradesClosedCount("take_profit"))
}

func TestMetricsCountersAccumulate(t *testing.T) {
	m := New()

	m.TradeClosed("take_profit")
	m.TradeClosed("take_profit")
	m.TradeClosed("stop_loss")

	assert.Equal(t, 2.0, m.TradesClosedCount("take_profit"))
	assert.Equal(t, 1.0, m.TradesClosedCount("stop_loss"))
	assert.Zero(t, m.TradesClosedCount("signal_close"))
}

func TestMetricsRunLifecycle(t *testing.T) {
	m := New()

	m.RunStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveRuns))

	m.RunFinished("completed", 0.25)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRuns))
	assert.Equal(t, 1.0, m.RunCount("completed"))
	assert.Zero(t, m.RunCount("canceled"))
}

func TestMetricsRegistriesAreIndependent(t *testing.T) {
	a := New()
	b := New()

	a.PositionOpened()
	a.PositionOpened()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.PositionsOpened))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PositionsOpened))
}

func TestMetricsHandlerServesScrape(t *testing.T) {
	m := New()
	m.RunFinished("completed", 0.5)
	m.SetEquity(104200.5)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `stratrun_runs_total{status="completed"} 1`)
	assert.Contains(t, body, "stratrun_equity 104200.5")
}

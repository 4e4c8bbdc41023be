// Package telemetry holds the Prometheus instrumentation for runs. Every
// recording method is nil-receiver safe so the simulation can run with
// instrumentation left unwired.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for StratRun. Each instance owns its
// registry, so parallel runs and tests never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
	ActiveRuns  prometheus.Gauge

	StepDuration prometheus.Histogram

	PositionsOpened   prometheus.Counter
	TradesClosed      *prometheus.CounterVec
	ProviderIncidents *prometheus.CounterVec

	Equity prometheus.Gauge
}

// New creates a metrics set registered into its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratrun_runs_total",
				Help: "Total number of finished runs by terminal status",
			},
			[]string{"status"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stratrun_run_duration_seconds",
				Help:    "Wall time of a full backtest run in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stratrun_active_runs",
				Help: "Number of runs currently executing",
			},
		),

		StepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stratrun_step_duration_seconds",
				Help:    "Duration of one simulation step in seconds",
				Buckets: []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
			},
		),

		PositionsOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stratrun_positions_opened_total",
				Help: "Total number of positions opened",
			},
		),

		TradesClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratrun_trades_closed_total",
				Help: "Total number of closed trades by exit reason",
			},
			[]string{"exit_reason"},
		),

		ProviderIncidents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratrun_provider_incidents_total",
				Help: "Total number of unusable provider signals by provider",
			},
			[]string{"provider"},
		),

		Equity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stratrun_equity",
				Help: "Marked-to-market equity of the most recent step",
			},
		),
	}

	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.ActiveRuns,
		m.StepDuration,
		m.PositionsOpened,
		m.TradesClosed,
		m.ProviderIncidents,
		m.Equity,
	)

	return m
}

// Registry exposes the underlying registry for HTTP serving
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns the Prometheus scrape handler for this metrics set
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

func (m *Metrics) RunFinished(status string, seconds float64) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(seconds)
}

func (m *Metrics) ObserveStep(seconds float64) {
	if m == nil {
		return
	}
	m.StepDuration.Observe(seconds)
}

func (m *Metrics) PositionOpened() {
	if m == nil {
		return
	}
	m.PositionsOpened.Inc()
}

func (m *Metrics) TradeClosed(exitReason string) {
	if m == nil {
		return
	}
	m.TradesClosed.WithLabelValues(exitReason).Inc()
}

func (m *Metrics) ProviderIncident(provider string) {
	if m == nil {
		return
	}
	m.ProviderIncidents.WithLabelValues(provider).Inc()
}

func (m *Metrics) SetEquity(equity float64) {
	if m == nil {
		return
	}
	m.Equity.Set(equity)
}

// TradesClosedCount reads the current counter value for one exit reason.
// Used by status surfaces that report counts without scraping.
func (m *Metrics) TradesClosedCount(exitReason string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.TradesClosed, exitReason)
}

// RunCount reads the current counter value for one terminal status
func (m *Metrics) RunCount(status string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.RunsTotal, status)
}

func counterValue(vec *prometheus.CounterVec, labels ...string) float64 {
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	pb := &io_prometheus_client.Metric{}
	if err := c.Write(pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}

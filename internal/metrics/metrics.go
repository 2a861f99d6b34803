// Package metrics exposes Prometheus metrics and the /healthz status of the
// divergence scanner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Cycle results used as the "result" label of divbot_cycles_total.
const (
	ResultSignal     = "signal"
	ResultNoSignal   = "no_signal"
	ResultSuppressed = "suppressed"
	ResultNoNewBar   = "no_new_bar"
	ResultFetchError = "fetch_error"
	ResultMalformed  = "malformed"
)

// Metrics holds all Prometheus metrics for the scanner.
type Metrics struct {
	CyclesTotal       *prometheus.CounterVec // labels: result
	FetchDur          prometheus.Histogram
	FetchFailures     prometheus.Counter
	DetectDur         prometheus.Histogram
	SignalsTotal      *prometheus.CounterVec // labels: direction
	SignalsSuppressed prometheus.Counter
	NotifyFailures    *prometheus.CounterVec // labels: notifier
	MalformedSeries   prometheus.Counter
	LastCandleLag     prometheus.Gauge

	// Notifier circuit breakers (0=closed, 1=open, 2=half-open)
	NotifierCircuitState *prometheus.GaugeVec // labels: notifier
	NotifierCircuitTrips *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "divbot_cycles_total",
			Help: "Scan cycles by outcome",
		}, []string{"result"}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "divbot_fetch_duration_seconds",
			Help:    "Candle fetch latency, including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "divbot_fetch_failures_total",
			Help: "Cycles aborted because the candle fetch failed",
		}),
		DetectDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "divbot_detect_duration_seconds",
			Help:    "Indicator update plus divergence detection latency",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "divbot_signals_total",
			Help: "Divergence signals delivered, by direction",
		}, []string{"direction"}),
		SignalsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "divbot_signals_suppressed_total",
			Help: "Signals dropped because their confirmation was already notified",
		}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "divbot_notify_failures_total",
			Help: "Failed signal deliveries, by notifier",
		}, []string{"notifier"}),
		MalformedSeries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "divbot_malformed_series_total",
			Help: "Cycles whose candle series failed validation",
		}),
		LastCandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "divbot_last_candle_lag_seconds",
			Help: "Wall clock minus close time of the newest completed candle",
		}),
		NotifierCircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "divbot_notifier_circuit_state",
			Help: "Notifier circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"notifier"}),
		NotifierCircuitTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "divbot_notifier_circuit_trips_total",
			Help: "Times a notifier circuit breaker tripped open",
		}, []string{"notifier"}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.FetchDur,
		m.FetchFailures,
		m.DetectDur,
		m.SignalsTotal,
		m.SignalsSuppressed,
		m.NotifyFailures,
		m.MalformedSeries,
		m.LastCandleLag,
		m.NotifierCircuitState,
		m.NotifierCircuitTrips,
	)

	return m
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the cycle-level Prometheus collectors.
type Recorder struct {
	cycles          *prometheus.CounterVec
	fetchResults    *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	baselineSymbols prometheus.Gauge
	lastCycle       prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_cycles_total",
				Help: "Completed evaluation cycles by outcome",
			},
			[]string{"status"},
		),
		fetchResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_fetch_results_total",
				Help: "Per-symbol fetch outcomes",
			},
			[]string{"result"},
		),
		alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_alerts_total",
				Help: "Net-flow alerts raised by trigger reason",
			},
			[]string{"reason"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signalbot_cycle_duration_seconds",
				Help:    "Wall time of one evaluation cycle",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
		),
		baselineSymbols: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalbot_baseline_symbols",
				Help: "Symbols tracked in the baseline store",
			},
		),
		lastCycle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalbot_last_cycle_timestamp_seconds",
				Help: "Unix time of the last completed cycle",
			},
		),
	}
}

// RecordCycle records a finished cycle.
func (r *Recorder) RecordCycle(status string, took time.Duration, at time.Time) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(status).Inc()
	r.cycleDuration.Observe(took.Seconds())
	r.lastCycle.Set(float64(at.Unix()))
}

// RecordFetch adds n fetch outcomes with the given result label.
func (r *Recorder) RecordFetch(result string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.fetchResults.WithLabelValues(result).Add(float64(n))
}

// RecordAlert counts one alert.
func (r *Recorder) RecordAlert(reason string) {
	if r == nil {
		return
	}
	r.alerts.WithLabelValues(reason).Inc()
}

// SetBaselineSymbols sets the tracked symbol gauge.
func (r *Recorder) SetBaselineSymbols(n int) {
	if r == nil {
		return
	}
	r.baselineSymbols.Set(float64(n))
}

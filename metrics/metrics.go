// Package metrics exposes pass counters in the Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	passes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qkanhe",
		Name:      "passes_total",
		Help:      "Finished passes by kind and status.",
	}, []string{"kind", "status"})

	passDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "qkanhe",
		Name:      "pass_duration_seconds",
		Help:      "Duration of finished passes.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"kind"})

	rows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qkanhe",
		Name:      "rows_written_total",
		Help:      "Rows written per block.",
	}, []string{"block"})

	warnings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qkanhe",
		Name:      "warnings_total",
		Help:      "Non-fatal data warnings per pass kind.",
	}, []string{"kind"})

	progress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "qkanhe",
		Name:      "pass_progress_ratio",
		Help:      "Progress of the running pass between 0 and 1.",
	})
)

func init() {
	registry.MustRegister(passes, passDuration, rows, warnings, progress)
}

// ObservePass records a finished pass.
func ObservePass(kind string, success bool, duration time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	passes.WithLabelValues(kind, status).Inc()
	passDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func AddRows(block string, n int) {
	if n > 0 {
		rows.WithLabelValues(block).Add(float64(n))
	}
}

func AddWarning(kind string) {
	warnings.WithLabelValues(kind).Inc()
}

func SetProgress(fraction float64) {
	progress.Set(fraction)
}

// Handler serves the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

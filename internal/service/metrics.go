package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fabriclens/internal/domain"
)

// Run outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// Metrics holds the analysis metrics on a dedicated registry, so several
// services (and tests) never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
	analyzerDuration *prometheus.HistogramVec
	anomalies        *prometheus.CounterVec
}

// NewMetrics creates and registers the analysis metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		// runs counts finished analyses.
		// Labels: outcome (success, failed, canceled)
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabriclens",
			Name:      "runs_total",
			Help:      "Total analysis runs by outcome",
		}, []string{"outcome"}),

		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fabriclens",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a complete analysis run",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		// analyzerDuration measures one analyzer over one dataset.
		// Labels: analyzer
		analyzerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fabriclens",
			Name:      "analyzer_duration_seconds",
			Help:      "Time spent in a single analyzer",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"analyzer"}),

		// anomalies counts records emitted by successful runs.
		// Labels: analyzer, severity
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabriclens",
			Name:      "anomalies_total",
			Help:      "Anomaly records emitted by analyzers",
		}, []string{"analyzer", "severity"}),
	}

	m.registry.MustRegister(m.runs, m.runDuration, m.analyzerDuration, m.anomalies)
	return m
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeAnalyzer(name string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.analyzerDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) countAnomalies(name string, list []domain.Anomaly) {
	if m == nil {
		return
	}
	for _, a := range list {
		m.anomalies.WithLabelValues(name, string(a.Severity)).Inc()
	}
}

// Package metrics exposes Prometheus counters for the fetch pipeline: NCBI
// requests, per-stage run outcomes and stage durations.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "srafetch"

// Outcome labels.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics holds the collectors on a private registry. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	entrezRequests *prometheus.CounterVec
	entrezLatency  *prometheus.HistogramVec
	runs           *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		entrezRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entrez_requests_total",
			Help:      "E-utilities requests by utility and HTTP status (0 for transport errors).",
		}, []string{"util", "status"}),
		entrezLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entrez_request_seconds",
			Help:      "E-utilities request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"util"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs processed by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_seconds",
			Help:      "Wall time of a pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		m.entrezRequests,
		m.entrezLatency,
		m.runs,
		m.stageDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveRequest records one E-utilities request.
func (m *Metrics) ObserveRequest(util string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.entrezRequests.WithLabelValues(util, strconv.Itoa(status)).Inc()
	m.entrezLatency.WithLabelValues(util).Observe(elapsed.Seconds())
}

// AddRuns counts n runs finishing stage with outcome.
func (m *Metrics) AddRuns(stage, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.runs.WithLabelValues(stage, outcome).Add(float64(n))
}

// ObserveStage records the time since start against stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Gatherer returns the registry for tests and custom exposition.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry to path in the text format read by the
// node exporter's textfile collector. Batch runs use it in place of a scrape.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

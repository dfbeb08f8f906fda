// Package metrics exposes pipeline counters and timings to Prometheus.
//
// A nil *Metrics is valid and records nothing, so callers that run without
// a registry (tests, one-off CLI invocations) need no special casing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "swamp"

// Run outcomes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	classified    *prometheus.CounterVec
	ruleFaults    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	portalChunks  *prometheus.CounterVec
	portalBytes   *prometheus.CounterVec
	runs          *prometheus.CounterVec
}

// New creates a registry with the pipeline collectors plus the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_classified_total",
			Help:      "Records classified, by data type and DataQuality category.",
		}, []string{"data_type", "category"}),
		ruleFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_faults_total",
			Help:      "Records whose rule evaluation failed.",
		}, []string{"data_type"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"data_type", "stage"}),
		portalChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "portal_chunks_uploaded_total",
			Help:      "Multipart chunks accepted by the data portal.",
		}, []string{"resource_id"}),
		portalBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "portal_bytes_uploaded_total",
			Help:      "Bytes accepted by the data portal.",
		}, []string{"resource_id"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by data type and outcome.",
		}, []string{"data_type", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.classified,
		m.ruleFaults,
		m.stageDuration,
		m.portalChunks,
		m.portalBytes,
		m.runs,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveClassification adds per-category counts and the fault count of one
// classification pass.
func (m *Metrics) ObserveClassification(dataType string, counts map[string]int, faults int) {
	if m == nil {
		return
	}
	for category, n := range counts {
		m.classified.WithLabelValues(dataType, category).Add(float64(n))
	}
	if faults > 0 {
		m.ruleFaults.WithLabelValues(dataType).Add(float64(faults))
	}
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(dataType, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(dataType, stage).Observe(d.Seconds())
}

// ChunkUploaded counts one accepted portal chunk of size bytes.
func (m *Metrics) ChunkUploaded(resourceID string, size int) {
	if m == nil {
		return
	}
	m.portalChunks.WithLabelValues(resourceID).Inc()
	m.portalBytes.WithLabelValues(resourceID).Add(float64(size))
}

// RunFinished counts a completed run.
func (m *Metrics) RunFinished(dataType string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.runs.WithLabelValues(dataType, status).Inc()
}

// Package telemetry exposes the gateway's own Prometheus metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "statsgateway"

// Metrics holds the gateway's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	backend  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers the collectors, including Go runtime and process metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Posted documents by kind and response code.",
		}, []string{"kind", "code"}),
		backend: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Calls to storage backends by result.",
		}, []string{"backend", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Wall-clock time spent processing one posted document.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

// ObserveRequest records one handled document. kind is empty for requests
// rejected before classification.
func (m *Metrics) ObserveRequest(kind string, code int, d time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	m.requests.WithLabelValues(kind, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveBackend records the outcome of one backend call.
func (m *Metrics) ObserveBackend(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.backend.WithLabelValues(backend, result).Inc()
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's Prometheus metrics.
type Metrics struct {
	// Registry owns these metrics; the /metrics endpoint serves it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a dedicated registry and registers the relay metrics in
// it. A private registry avoids "duplicate collector" panics when NewMetrics
// is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_request_duration_seconds",
				Help:    "Duration of relay HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_requests_total",
				Help: "Total relay HTTP requests by status.",
			},
			[]string{"method", "path", "status"},
		),
	}
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(method, path, status string, d time.Duration) {
	m.requestDuration.WithLabelValues(method, path).Observe(d.Seconds())
	m.requestsTotal.WithLabelValues(method, path, status).Inc()
}

// Package metrics provides Prometheus instrumentation for the gateway.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts chat requests by provider and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "requests_total",
			Help:      "Total chat requests by provider and status.",
		},
		[]string{"provider", "status"}, // status: "success", "error", "cache_hit"
	)

	// RequestDuration tracks end-to-end request latency in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "switchboard",
			Name:      "request_duration_seconds",
			Help:      "End-to-end chat request latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// ProviderHealthy tracks each provider's health flag: 1 healthy, 0 not.
	ProviderHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "switchboard",
			Name:      "provider_healthy",
			Help:      "Provider health flag: 1 healthy, 0 unhealthy.",
		},
		[]string{"provider"},
	)

	// FailoversTotal counts requests that were served by a fallback provider.
	FailoversTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "failovers_total",
			Help:      "Total requests completed by a fallback provider.",
		},
	)

	// StreamChunksTotal counts delivered stream chunks.
	StreamChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "stream_chunks_total",
			Help:      "Total stream chunks delivered.",
		},
		[]string{"provider"},
	)

	// ActiveStreams tracks the number of in-flight streaming sessions.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "switchboard",
			Name:      "active_streams",
			Help:      "Number of in-flight streaming sessions.",
		},
	)
)

// ObserveRequest records one completed chat attempt.
func ObserveRequest(provider, status string, elapsed time.Duration) {
	RequestsTotal.WithLabelValues(provider, status).Inc()
	RequestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// SetHealthy updates the health gauge for a provider.
func SetHealthy(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	ProviderHealthy.WithLabelValues(provider).Set(v)
}

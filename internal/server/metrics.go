// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler is the "handler" label value used to partition metrics by
// the logical endpoint name rather than the raw URL path.
const labelHandler = "handler"

// registerGatherer is the registry surface the server needs: registration
// for its own metrics plus gathering for the /metrics endpoint.
// *prometheus.Registry satisfies it.
type registerGatherer interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// contextRequestsTotal counts completed /api/context-preview requests,
	// partitioned by outcome: "ok" or "error".
	contextRequestsTotal *prometheus.CounterVec

	// contextDurationSeconds records the wall-clock duration of each
	// /api/context-preview request across all source fan-outs.
	contextDurationSeconds prometheus.Histogram

	// sourcesSearched counts vector sources queried across all ranking
	// requests, successful or not.
	sourcesSearched prometheus.Counter

	// sourceFailuresTotal counts sources excluded from a ranking response
	// because resolution or search failed.
	sourceFailuresTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		contextRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xmem",
			Subsystem: "context",
			Name:      "requests_total",
			Help:      "Total number of /api/context-preview requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		contextDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "xmem",
			Subsystem: "context",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/context-preview requests including all source fan-outs.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		sourcesSearched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "xmem",
			Subsystem: "context",
			Name:      "sources_searched_total",
			Help:      "Total number of vector sources queried across all ranking requests.",
		}),

		sourceFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "xmem",
			Subsystem: "context",
			Name:      "source_failures_total",
			Help:      "Total number of sources excluded from a ranking response because resolution or search failed.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xmem",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "xmem",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

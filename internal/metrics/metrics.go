// Package metrics exposes Prometheus counters for the HTTP surface and the
// sync reconciler.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	syncOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "sync_operations_total",
			Help:      "Ledger replay outcomes.",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, syncOperations)
	})
}

// IncHTTP increments the request counter for a route/code pair.
func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

// IncSync increments the replay outcome counter ("synced" or "failed").
func IncSync(outcome string) {
	syncOperations.WithLabelValues(outcome).Inc()
}

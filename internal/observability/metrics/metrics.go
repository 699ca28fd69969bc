// Package metrics provides Prometheus instrumentation for veriport.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled bool

	// Explorer API metrics
	explorerRequestsTotal *prometheus.CounterVec
	explorerDuration      *prometheus.HistogramVec

	// Migration metrics
	migrationsTotal   *prometheus.CounterVec
	migrationDuration prometheus.Histogram
	migrationPolls    prometheus.Histogram
)

// Init initializes the metrics system.
func Init(enabledFlag bool) {
	enabled = enabledFlag

	if !enabled {
		return
	}

	// Explorer request counter
	explorerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veriport_explorer_requests_total",
			Help: "Total number of explorer API requests",
		},
		[]string{"explorer", "action", "status"},
	)

	// Explorer request duration histogram
	explorerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veriport_explorer_request_duration_seconds",
			Help:    "Explorer API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"explorer", "action"},
	)

	// Migration outcome counter
	migrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veriport_migrations_total",
			Help: "Total number of per-contract migration outcomes",
		},
		[]string{"status"},
	)

	// Per-contract migration duration histogram
	migrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "veriport_migration_duration_seconds",
			Help:    "End-to-end migration duration per contract in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Poll count histogram
	migrationPolls = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "veriport_migration_polls",
			Help:    "Status polls issued per contract before a terminal state",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 15, 20},
		},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

package syncer

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the sync engine.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	syncedTotal   prometheus.Counter
	failedTotal   *prometheus.CounterVec
	parkedTotal   prometheus.Counter
	drainDuration prometheus.Histogram
}

// NewMetrics initializes a private registry with the engine's metrics.
// queueDepth is sampled on scrape so the gauge never goes stale.
func NewMetrics(queueDepth func() float64) *Metrics {
	registry := prometheus.NewRegistry()

	depth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "divvy_queue_depth",
		Help: "Number of pending mutations in the offline queue.",
	}, queueDepth)
	synced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "divvy_sync_entries_total",
		Help: "Queue entries successfully applied to the remote backend.",
	})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "divvy_sync_failures_total",
		Help: "Per-entry sync failures by error kind.",
	}, []string{"kind"})
	parked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "divvy_sync_parked_total",
		Help: "Entries moved to the dead-letter list.",
	})
	drain := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "divvy_sync_drain_duration_seconds",
		Help:    "Duration of queue drain passes.",
		Buckets: prometheus.DefBuckets,
	})
	registry.MustRegister(depth, synced, failed, parked, drain)

	return &Metrics{
		registry:      registry,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		syncedTotal:   synced,
		failedTotal:   failed,
		parkedTotal:   parked,
		drainDuration: drain,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Package metrics provides Prometheus metrics for the marketmirror client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Remote marketplace API metrics
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketmirror_remote_requests_total",
			Help: "Total number of marketplace API requests",
		},
		[]string{"operation", "status"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketmirror_remote_request_duration_seconds",
			Help:    "Marketplace API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Reconciliation metrics
	reconcilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketmirror_reconciles_total",
			Help: "Total reconciliation events applied to the listing cache",
		},
		[]string{"operation", "outcome"},
	)

	// Cache state metrics
	listingsCached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketmirror_listings_cached",
			Help: "Number of listing records in the cache",
		},
	)

	pendingUpdates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketmirror_pending_updates",
			Help: "Number of folders with an outstanding remote request",
		},
	)

	stockRefreshesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketmirror_stock_refreshes_total",
			Help: "Total stock-count refreshes triggered by the dirty flag",
		},
	)

	busyRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketmirror_busy_rejections_total",
			Help: "Total operations rejected because the folder was already pending",
		},
	)

	// Event broadcast metrics
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketmirror_events_total",
			Help: "Total observer events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRemoteRequest records a marketplace API request metric.
func RecordRemoteRequest(operation string, status int, duration time.Duration) {
	remoteRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	remoteRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReconcile records a reconciliation applied for an operation.
func RecordReconcile(operation, outcome string) {
	reconcilesTotal.WithLabelValues(operation, outcome).Inc()
}

// SetListingsCached sets the current listing cache size.
func SetListingsCached(n int) {
	listingsCached.Set(float64(n))
}

// SetPendingUpdates sets the current pending set size.
func SetPendingUpdates(n int) {
	pendingUpdates.Set(float64(n))
}

// RecordStockRefresh records one dirty-flag consumption.
func RecordStockRefresh() {
	stockRefreshesTotal.Inc()
}

// RecordBusyRejection records a synchronous busy rejection.
func RecordBusyRejection() {
	busyRejectionsTotal.Inc()
}

// RecordEvent records a published observer event.
func RecordEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

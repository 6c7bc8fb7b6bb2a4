// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Feed metrics
	WSMessagesReceived prometheus.Counter
	WSReconnects       prometheus.Counter
	WSParseErrors      prometheus.Counter
	TokenUpserts       prometheus.Counter
	TokenEvictions     prometheus.Counter
	CollectionSize     prometheus.Gauge

	// Snapshot metrics
	SnapshotDuration prometheus.Histogram
	SnapshotTokens   prometheus.Gauge

	// Backfill metrics
	BackfillsDispatched prometheus.Counter
	BackfillsApplied    prometheus.Counter
	BackfillErrors      prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	TicksStored     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "launchfeed"
	}

	return &Metrics{
		// Feed metrics
		WSMessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ws_messages_received_total",
			Help:      "Total number of WebSocket messages received",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnect attempts",
		}),
		WSParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ws_parse_errors_total",
			Help:      "Total number of unparseable WebSocket messages",
		}),
		TokenUpserts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "token_upserts_total",
			Help:      "Total number of token records created or updated",
		}),
		TokenEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "token_evictions_total",
			Help:      "Total number of token records evicted from the collection",
		}),
		CollectionSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "collection_size",
			Help:      "Current number of token records in the collection",
		}),

		// Snapshot metrics
		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "load_duration_seconds",
			Help:      "Snapshot listing fetch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SnapshotTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "tokens_loaded",
			Help:      "Number of tokens mapped from the last snapshot",
		}),

		// Backfill metrics
		BackfillsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "dispatched_total",
			Help:      "Total number of metadata backfill fetches dispatched",
		}),
		BackfillsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "applied_total",
			Help:      "Total number of metadata backfill results applied",
		}),
		BackfillErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "errors_total",
			Help:      "Total number of failed metadata backfill fetches",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		TicksStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "ticks_stored_total",
			Help:      "Total number of market ticks stored to database",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordWSMessage increments the WebSocket messages received counter.
func RecordWSMessage() {
	DefaultMetrics.WSMessagesReceived.Inc()
}

// RecordWSReconnect increments the WebSocket reconnects counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordWSParseError increments the WebSocket parse errors counter.
func RecordWSParseError() {
	DefaultMetrics.WSParseErrors.Inc()
}

// RecordTokenUpsert increments the token upserts counter.
func RecordTokenUpsert() {
	DefaultMetrics.TokenUpserts.Inc()
}

// RecordEvictions adds to the token evictions counter.
func RecordEvictions(n int) {
	if n > 0 {
		DefaultMetrics.TokenEvictions.Add(float64(n))
	}
}

// SetCollectionSize updates the collection size gauge.
func SetCollectionSize(n int) {
	DefaultMetrics.CollectionSize.Set(float64(n))
}

// RecordSnapshot records a snapshot load.
func RecordSnapshot(seconds float64, tokens int) {
	DefaultMetrics.SnapshotDuration.Observe(seconds)
	DefaultMetrics.SnapshotTokens.Set(float64(tokens))
}

// RecordBackfillDispatched increments the backfills dispatched counter.
func RecordBackfillDispatched() {
	DefaultMetrics.BackfillsDispatched.Inc()
}

// RecordBackfillApplied increments the backfills applied counter.
func RecordBackfillApplied() {
	DefaultMetrics.BackfillsApplied.Inc()
}

// RecordBackfillError increments the backfill errors counter.
func RecordBackfillError() {
	DefaultMetrics.BackfillErrors.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordTicksStored adds to the ticks stored counter.
func RecordTicksStored(n int) {
	if n > 0 {
		DefaultMetrics.TicksStored.Add(float64(n))
	}
}

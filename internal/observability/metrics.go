package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicbox_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// CacheLookups counts cache-aside reads by result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicbox_cache_lookups_total",
		Help: "Cache-aside lookups by result",
	}, []string{"result"})

	// StoreOperationLatency records repository latency by store driver and operation.
	StoreOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "musicbox_store_operation_latency_seconds",
		Help:    "Repository operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"driver", "operation"})

	// RevalidationSignals counts stale-path signals by outcome.
	RevalidationSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicbox_revalidation_signals_total",
		Help: "Total number of path revalidation signals",
	}, []string{"outcome"})

	// ReviewCascadeSize observes how many reviews a single delete removed.
	ReviewCascadeSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "musicbox_review_cascade_size",
		Help:    "Number of reviews removed by one cascading delete",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})

	// UploadResults counts uploaded files by storage driver and result.
	UploadResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicbox_upload_results_total",
		Help: "Total number of processed upload files",
	}, []string{"driver", "result"})

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "musicbox_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "musicbox_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts WebSocket events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicbox_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicbox_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// StoreMetrics records repository latency for one store driver.
type StoreMetrics struct {
	driver string
}

// NewStoreMetrics returns a StoreMetrics labelled with driver ("postgres", "sqlite", "mongo").
func NewStoreMetrics(driver string) *StoreMetrics {
	return &StoreMetrics{driver: driver}
}

// ObserveQuery records the latency of a store operation.
func (m *StoreMetrics) ObserveQuery(operation string, start time.Time) {
	StoreOperationLatency.WithLabelValues(m.driver, operation).Observe(time.Since(start).Seconds())
}

// TrackQuery returns a function that records latency when called (e.g. defer).
func (m *StoreMetrics) TrackQuery(operation string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, start)
	}
}

// RecordWebSocketEvent increments the WebSocket events counter for the event type.
func RecordWebSocketEvent(eventType string) {
	WebSocketEventsTotal.WithLabelValues(eventType).Inc()
}

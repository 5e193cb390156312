// Package metrics holds the Prometheus collectors shared by the ingest, query
// and analytics services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StorageDegradedTotal counts storage operations that failed and were
	// answered with a default value instead of an error.
	StorageDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_storage_degraded_total",
			Help: "Storage operations that fell back to a default value after a backend error",
		},
		[]string{"op"},
	)

	// EventsTotal counts events by outcome (processed, failed, published).
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_events_total",
			Help: "Events seen by the batch aggregator by outcome",
		},
		[]string{"outcome"},
	)

	// BatchFallbackTotal counts batches applied through the single-event path.
	BatchFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_batch_fallback_total",
			Help: "Batches whose bulk increment failed and were re-applied event by event",
		},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_batch_duration_seconds",
			Help:    "Time spent aggregating one batch",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"mode"},
	)

	// RollupRowsTotal counts rows written by the daily rollup.
	RollupRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_rollup_rows_total",
			Help: "Daily aggregate rows upserted into PostgreSQL",
		},
	)

	// ConsumedMessagesTotal counts Kafka messages by handler outcome.
	ConsumedMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_consumed_messages_total",
			Help: "Kafka messages handled by the analytics consumer by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)
)

func RecordDegraded(op string) {
	StorageDegradedTotal.WithLabelValues(op).Inc()
}

func RecordEvents(outcome string, n int) {
	if n <= 0 {
		return
	}
	EventsTotal.WithLabelValues(outcome).Add(float64(n))
}

func ObserveBatch(mode string, started time.Time) {
	BatchDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
}

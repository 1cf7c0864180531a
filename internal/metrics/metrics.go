// Package metrics holds the Prometheus collectors of the server process.
package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingestion
	IngestedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitrine_ingested_rows_total",
			Help: "Rows accepted by the ingestion API",
		},
		[]string{"kind"}, // "session", "pageview", "performance", "conversion"
	)

	IngestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitrine_ingest_failures_total",
			Help: "Ingestion requests rejected or failed to persist",
		},
		[]string{"kind", "reason"}, // reason: "invalid", "storage"
	)

	// Aggregation
	AggregationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitrine_aggregation_requests_total",
			Help: "Aggregation function invocations by outcome",
		},
		[]string{"outcome"}, // "ok", "unauthorized", "forbidden", "error"
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vitrine_aggregation_duration_seconds",
			Help:    "Time spent loading and computing an aggregate report",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Geolocation
	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitrine_geo_lookups_total",
			Help: "Geolocation lookups by the source that answered",
		},
		[]string{"source"}, // "cache", "geolite", "primary", "fallback", "default"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vitrine_circuit_breaker_state",
			Help: "Circuit breaker state per geolocation provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Jobs
	SessionsFinalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitrine_sessions_finalized_total",
			Help: "Idle sessions whose bounce flag was settled by the finalizer",
		},
	)
)

// RecordIngest counts one accepted row of kind.
func RecordIngest(kind string) {
	IngestedRows.WithLabelValues(kind).Inc()
}

// RecordIngestFailure counts one failed ingestion of kind.
func RecordIngestFailure(kind, reason string) {
	IngestFailures.WithLabelValues(kind, reason).Inc()
}

// ObserveAggregation records the outcome and, for completed runs, the
// duration since start.
func ObserveAggregation(outcome string, start time.Time) {
	AggregationRequests.WithLabelValues(outcome).Inc()
	if outcome == "ok" || outcome == "error" {
		AggregationDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordAggregationRejected counts a request refused before any work.
func RecordAggregationRejected(outcome string) {
	AggregationRequests.WithLabelValues(outcome).Inc()
}

// RecordGeoLookup counts a lookup answered by source.
func RecordGeoLookup(source string) {
	GeoLookups.WithLabelValues(source).Inc()
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/flyingrobots/event-analytics-engine/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "events_ingested_total",
		Help: "Total number of events persisted by the event processor",
	})
	EventsAggregated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "events_aggregated_total",
		Help: "Total number of events folded into the aggregation engine",
	})
	AggregationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aggregation_errors_total",
		Help: "Total number of aggregation write failures",
	})
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total number of tiered cache hits, labeled by layer",
	}, []string{"layer"})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total number of tiered cache misses across all layers",
	})
	CachePromotions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_promotions_total",
		Help: "Total number of values promoted into a faster cache layer on read",
	})
	BusEventsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bus_events_published_total",
		Help: "Total number of domain events published to the event bus",
	})
	BusEventsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bus_events_processed_total",
		Help: "Total number of domain events drained from the main bus channel by the batch processor",
	})
	BusProcessingErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bus_processing_errors_total",
		Help: "Total number of event bus delivery failures (full or closed subscriber channels)",
	})
	MaterializedViewRefreshSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "materialized_view_refresh_seconds",
		Help:    "Duration of REFRESH MATERIALIZED VIEW statements, labeled by view",
		Buckets: prometheus.DefBuckets,
	}, []string{"view"})
	SeederRowsInserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seeder_rows_inserted_total",
		Help: "Total number of rows inserted by the bulk seeder",
	})
	SeederBatchRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seeder_batch_retries_total",
		Help: "Total number of seeder batch insert retries",
	})
	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open, labeled by the protected resource",
	}, []string{"resource"})
	CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_trips_total",
		Help: "Count of times a circuit breaker transitioned to Open, labeled by resource",
	}, []string{"resource"})
)

func init() {
	prometheus.MustRegister(
		EventsIngested, EventsAggregated, AggregationErrors,
		CacheHits, CacheMisses, CachePromotions,
		BusEventsPublished, BusEventsProcessed, BusProcessingErrors,
		MaterializedViewRefreshSeconds,
		SeederRowsInserted, SeederBatchRetries,
		CircuitBreakerState, CircuitBreakerTrips,
	)
}

// StartMetricsServer exposes /metrics and returns a server for controlled shutdown.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

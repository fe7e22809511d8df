package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run counters, registered on the default registry.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epipulse_pipeline_runs_total",
		Help: "Pipeline report runs by outcome.",
	}, []string{"status"})

	recordsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epipulse_records_processed_total",
		Help: "Records kept across all pipeline runs.",
	})

	rowsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epipulse_rows_skipped_total",
		Help: "Source rows skipped during ingestion across all runs.",
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epipulse_snapshot_cache_hits_total",
		Help: "Snapshot cache hits.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epipulse_snapshot_cache_misses_total",
		Help: "Snapshot cache misses.",
	})

	metricFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epipulse_metric_failures_total",
		Help: "Metric computations that returned an error, by metric.",
	}, []string{"metric"})
)

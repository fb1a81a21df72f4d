// Package metrics provides Prometheus metrics for the Catalens indexing
// and search pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "catalens"

var (
	// DocumentsIndexed tracks chunk documents successfully written per entity type.
	DocumentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_indexed_total",
			Help:      "Total chunk documents successfully indexed",
		},
		[]string{"entity_type"},
	)

	// DocumentsFailed tracks chunk documents rejected by the store per entity type.
	DocumentsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_failed_total",
			Help:      "Total chunk documents that failed to index",
		},
		[]string{"entity_type"},
	)

	// UpsertsSkipped tracks upserts skipped because the stored fingerprint
	// matched the candidate document.
	UpsertsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upserts_skipped_total",
			Help:      "Total upserts skipped due to unchanged fingerprint",
		},
	)

	// BulkFlushes tracks bulk flush outcomes.
	BulkFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_flushes_total",
			Help:      "Total bulk flushes by outcome",
		},
		[]string{"status"}, // success/partial/error
	)

	// EmbeddingBatches tracks embedding batch calls by outcome.
	EmbeddingBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_batches_total",
			Help:      "Total embedding batch requests",
		},
		[]string{"status"}, // success/error
	)

	// SearchLatency tracks end-to-end semantic search latency.
	SearchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_latency_seconds",
			Help:      "Semantic search latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// SearchesTotal tracks semantic searches by outcome.
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total semantic searches executed",
		},
		[]string{"status"}, // success/error
	)

	// EntityTypesCompleted tracks entity types promoted to completion
	// during distributed reindexing.
	EntityTypesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_types_completed_total",
			Help:      "Total entity types promoted to completed during reindexing",
		},
	)
)

// ObserveSearch records a semantic search execution.
func ObserveSearch(latencySeconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SearchesTotal.WithLabelValues(status).Inc()
	SearchLatency.Observe(latencySeconds)
}

// ObserveEmbeddingBatch records an embedding batch request.
func ObserveEmbeddingBatch(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EmbeddingBatches.WithLabelValues(status).Inc()
}

// ObserveBulkFlush records a bulk flush with the given item outcomes.
func ObserveBulkFlush(entityType string, succeeded, failed int, err error) {
	switch {
	case err != nil:
		BulkFlushes.WithLabelValues("error").Inc()
	case failed > 0:
		BulkFlushes.WithLabelValues("partial").Inc()
	default:
		BulkFlushes.WithLabelValues("success").Inc()
	}
	if succeeded > 0 {
		DocumentsIndexed.WithLabelValues(entityType).Add(float64(succeeded))
	}
	if failed > 0 {
		DocumentsFailed.WithLabelValues(entityType).Add(float64(failed))
	}
}

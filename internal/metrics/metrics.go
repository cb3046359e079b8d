// Package metrics holds the Prometheus collectors shared by the ingestion
// and question-answering pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docqa",
		Name:      "ingest_jobs_total",
		Help:      "Ingestion jobs by final outcome (done, error, skipped).",
	}, []string{"outcome"})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "docqa",
		Name:      "ingest_duration_seconds",
		Help:      "Wall time of successful and failed ingestion runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	IndexBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "docqa",
		Name:      "index_build_duration_seconds",
		Help:      "Time to embed, build and persist one document index.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	CachedIndexes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "docqa",
		Name:      "cached_indexes",
		Help:      "Vector indexes resident in memory.",
	})

	RetrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "docqa",
		Name:      "retrieval_duration_seconds",
		Help:      "Query embedding plus ANN search plus chunk resolution.",
		Buckets:   prometheus.DefBuckets,
	})

	AskOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docqa",
		Name:      "ask_total",
		Help:      "Question streams by terminal outcome.",
	}, []string{"outcome"})

	StreamedTokens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docqa",
		Name:      "streamed_tokens_total",
		Help:      "Token events relayed to clients.",
	})

	EmbeddingCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docqa",
		Name:      "embedding_cache_lookups_total",
		Help:      "Query embedding cache lookups by result (hit, miss, error).",
	}, []string{"result"})
)

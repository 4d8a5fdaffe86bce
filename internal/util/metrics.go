package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_requests_total",
		Help: "Total number of bulk ingest requests",
	})

	IngestLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_lines_total",
		Help: "Total ingested lines by final status",
	}, []string{"status"})

	IngestBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_bytes_total",
		Help: "Total request body bytes consumed by the stream decoder",
	})

	ChunkCommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_chunk_commit_latency_seconds",
		Help:    "Latency of bulk chunk transactions",
		Buckets: prometheus.DefBuckets,
	})

	ChunkFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_chunk_fallbacks_total",
		Help: "Chunks that fell back to record-at-a-time persistence",
	})

	FallbackRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_fallback_records_total",
		Help: "Records persisted through the per-record fallback path",
	})

	StorageUnavailableTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_storage_unavailable_total",
		Help: "Requests cut short by storage-layer unavailability",
	})

	ProductCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_product_cache_hits_total",
		Help: "Product existence pre-filter hits",
	})

	ProductCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_product_cache_misses_total",
		Help: "Product existence pre-filter misses",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

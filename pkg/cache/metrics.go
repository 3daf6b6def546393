package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, disk, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "d2_cache_hits_total",
			Help: "Total number of payload cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "d2_cache_misses_total",
			Help: "Total number of payload cache misses",
		},
	)

	// CacheSize tracks the bytes held on disk by layer
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "d2_cache_size_bytes",
			Help: "Current size of the payload cache in bytes",
		},
		[]string{"layer"},
	)

	// CacheEvictions tracks files removed to stay under the byte budget
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "d2_cache_evictions_total",
			Help: "Total number of payload cache files evicted",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "d2_cache_errors_total",
			Help: "Total number of payload cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "clear"
	)
)

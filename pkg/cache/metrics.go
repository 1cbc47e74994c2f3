package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fresh pages served without a request.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_cache_hits_total",
		Help: "Total number of pages served fresh from the cache",
	})

	// CacheMisses tracks lookups that found nothing.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_cache_misses_total",
		Help: "Total number of page cache misses",
	})

	// NotModified tracks 304 responses answered from a stale entry.
	NotModified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_cache_not_modified_total",
		Help: "Total number of 304 Not Modified responses served from the cache",
	})

	// CacheErrors tracks Redis and encoding failures.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)

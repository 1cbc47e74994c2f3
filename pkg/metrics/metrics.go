// Package metrics exposes the Prometheus registry used by the harvester.
// Metrics are declared with promauto in the packages that emit them
// (transport, harvest, cache, ratelimit); this package serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all harvester metrics are attached to.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns an HTTP handler serving Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Transport (pkg/transport):
//   - harvester_requests_total{source, status} (Counter): HTTP attempts by outcome status
//   - harvester_request_duration_seconds{source} (Histogram): single attempt latency
//   - harvester_errors_total{class} (Counter): failed attempts by class (client, server, rate_limit, network)
//   - harvester_retries_total{error_class} (Counter): retry attempts
//   - harvester_retry_backoff_seconds{error_class} (Histogram): wait before each retry
//   - harvester_retry_exhausted_total{error_class} (Counter): fetches that ran out of attempts
//
// Harvest (pkg/harvest):
//   - harvester_pages_fetched_total{source} (Counter)
//   - harvester_records_emitted_total{source} (Counter)
//   - harvester_total_inconsistencies_total{source} (Counter)
//   - harvester_runs_total{source, result} (Counter): result is complete, mismatch, error, cancelled
//
// Cache (pkg/cache):
//   - harvester_cache_hits_total, harvester_cache_misses_total
//   - harvester_cache_not_modified_total: 304 responses served from cache
//   - harvester_cache_errors_total{operation}
//
// Pacing (pkg/ratelimit):
//   - harvester_pacing_wait_seconds (Histogram)
//
// Example Prometheus Queries:
//
//   # Retry pressure per class
//   sum by (error_class) (rate(harvester_retries_total[5m]))
//
//   # Records per second by source
//   rate(harvester_records_emitted_total[1m])

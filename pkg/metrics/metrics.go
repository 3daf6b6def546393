// Package metrics provides the Prometheus registry shared by the Destiny
// client packages. Metrics are defined in their respective packages
// (client, ratelimit, manifest, cache, raidhub) to keep them modular and avoid
// circular dependencies.
//
// This package documents every metric and serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registerer every package registers with.
// All metrics are registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - bungie_ratelimit_wait_seconds (Histogram): Time callers waited for their dispatch slot
//   - bungie_ratelimit_throttles_total (Counter): Throttle hints applied from ThrottleSeconds
//
// Request Metrics (pkg/client):
//   - bungie_requests_total{endpoint, status} (Counter): Attempts by endpoint and HTTP status
//   - bungie_request_duration_seconds{endpoint} (Histogram): Request duration including retries
//   - bungie_errors_total{class} (Counter): Failed attempts by class (client, server, rate_limit,
//     throttle, application, network, timeout)
//
// Retry Metrics (pkg/client):
//   - bungie_retries_total{error_class} (Counter): Retry attempts by error class
//   - bungie_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - bungie_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Manifest Metrics (pkg/manifest):
//   - manifest_refreshes_total{result} (Counter): Update checks (downloaded, current, stale, failed)
//   - manifest_items (Gauge): Item definitions currently served
//   - manifest_searches_total (Counter): Item name searches
//
// RaidHub Metrics (pkg/raidhub):
//   - raidhub_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - raidhub_request_duration_seconds{endpoint} (Histogram): Request duration
//   - raidhub_leaderboard_requests_total{source} (Counter): Leaderboard lookups by source
//     (cache, live, stale)
//
// Payload Cache Metrics (pkg/cache):
//   - d2_cache_hits_total{layer} (Counter): Hits by layer (memory, disk, redis)
//   - d2_cache_misses_total (Counter): Misses
//   - d2_cache_size_bytes{layer} (Gauge): Bytes held on disk
//   - d2_cache_evictions_total (Counter): Files evicted to honour the size budget
//   - d2_cache_errors_total{operation} (Counter): Store errors
//
// Example Prometheus Queries:
//
//   # Payload Cache Hit Rate
//   sum(rate(d2_cache_hits_total[5m])) /
//   (sum(rate(d2_cache_hits_total[5m])) + sum(rate(d2_cache_misses_total[5m])))
//
//   # Upstream Throttling
//   rate(bungie_errors_total{class=~"rate_limit|throttle"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(bungie_request_duration_seconds_bucket[5m]))
//
//   # Serving Stale Manifest
//   increase(manifest_refreshes_total{result="stale"}[1h]) > 0

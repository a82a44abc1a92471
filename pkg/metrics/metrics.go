// Package metrics exposes the Prometheus metrics of the hub retrieval
// engine. The metrics themselves are defined with promauto in the packages
// that record them (client, pagination, cache, session, checkpoint) to avoid
// import cycles; this package serves them and documents the catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer promauto uses in every hub package.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Hub Requests (pkg/client):
//   - hub_requests_total{mode, status} (Counter): requests by mode ("interpolated", "stored", "items") and HTTP status, "blocked" or "network_error"
//   - hub_request_duration_seconds{mode} (Histogram): request duration
//
// Pagination (pkg/pagination):
//   - hub_pages_total{mode} (Counter): pages received
//   - hub_page_rows (Histogram): rows per page
//   - hub_retries_total{bucket} (Counter): classified failures that were retried
//   - hub_retry_backoff_seconds (Histogram): wait before an immediate retry
//   - hub_page_row_cap_shrinks_total (Counter): session restarts with a halved page row cap
//   - hub_sessions_total{mode, state} (Counter): finished sessions by terminal state
//   - hub_session_duration_seconds{mode} (Histogram): session duration
//   - hub_batch_duration_seconds (Histogram): multi-source fetch duration
//   - hub_batch_sources_total{outcome} (Counter): sources of multi-source fetches by outcome
//
// Resolved Items Cache (pkg/cache):
//   - hub_cache_hits_total{layer="redis"} (Counter)
//   - hub_cache_misses_total (Counter)
//   - hub_cache_size_bytes{layer="redis"} (Gauge)
//   - hub_cache_errors_total{operation} (Counter)
//
// Session State (pkg/session):
//   - hub_session_authenticated (Gauge): 0 once the hub rejected the credentials
//   - hub_session_deauthentications_total (Counter)
//   - hub_session_blocked_requests_total (Counter)
//
// Checkpoints (pkg/checkpoint):
//   - hub_checkpoint_operations_total{backend, operation} (Counter)
//
// Example Prometheus Queries:
//
//   # Shrink rate (timeouts under load)
//   rate(hub_page_row_cap_shrinks_total[5m])
//
//   # Failed sessions by mode
//   sum by (mode) (rate(hub_sessions_total{state="failed"}[5m]))
//
//   # P95 page request latency
//   histogram_quantile(0.95, rate(hub_request_duration_seconds_bucket[5m]))
//
//   # Items cache hit rate
//   sum(rate(hub_cache_hits_total[5m])) /
//   (sum(rate(hub_cache_hits_total[5m])) + sum(rate(hub_cache_misses_total[5m])))

// Package metrics documents the Prometheus metrics the export service
// exposes. All metrics are defined in their owning packages (commerce,
// enrich, ratelimit, cache, export, storage, pipeline) to keep registration
// next to the code that drives them; this package is the reference index.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the Prometheus registerer the service publishes to. Metrics
// register themselves via promauto in their owning packages; internal/web
// mounts promhttp over the matching gatherer at /metrics.
var Registry = prometheus.DefaultRegisterer

// Metrics Reference
//
// Request metrics (pkg/commerce):
//   - commerce_export_requests_total{source, status} (Counter): Commerce API
//     requests by logical source (products, inventory, categories) and HTTP
//     status; token fetches go through the token provider and are not
//     counted here
//   - commerce_export_request_duration_seconds{source} (Histogram): request
//     latency by source
//   - commerce_export_upstream_errors_total{class} (Counter): upstream
//     failures by class (client, server, rate_limit, network, timeout, auth)
//
// Retry metrics (pkg/commerce):
//   - commerce_export_retries_total{error_class} (Counter): retry attempts
//   - commerce_export_retry_backoff_seconds{error_class} (Histogram): backoff
//     durations actually slept
//   - commerce_export_retry_exhausted_total{error_class} (Counter): requests
//     that ran out of attempts
//
// Dispatch metrics (pkg/ratelimit):
//   - commerce_export_dispatch_in_flight (Gauge): enrichment batches holding
//     a dispatch slot
//   - commerce_export_dispatches_total (Counter): dispatches admitted
//   - commerce_export_dispatch_wait_seconds (Histogram): time spent waiting
//     for a slot and pace token
//
// Enrichment metrics (pkg/enrich):
//   - commerce_export_enrich_batches_total{pass, status} (Counter): batch
//     outcomes per pass (inventory, categories)
//   - commerce_export_enrich_warnings_total (Counter): degraded rows
//     (missing quantities, unresolved categories)
//
// Cache metrics (pkg/cache):
//   - commerce_export_cache_hits_total{backend} (Counter)
//   - commerce_export_cache_misses_total (Counter)
//   - commerce_export_cache_errors_total{operation} (Counter)
//
// Artifact metrics (pkg/export):
//   - commerce_export_records_total (Counter): rows written to artifacts
//   - commerce_export_artifact_bytes{encoding} (Gauge): last artifact size,
//     raw and gzip
//
// Storage metrics (pkg/storage):
//   - commerce_export_storage_operations_total{provider, operation, status}
//     (Counter)
//   - commerce_export_storage_operation_duration_seconds{provider, operation}
//     (Histogram)
//
// Run metrics (pkg/pipeline):
//   - commerce_export_runs_total{status} (Counter): runs by terminal state
//   - commerce_export_run_duration_seconds (Histogram): end-to-end run time
//   - commerce_export_stage_duration_seconds{stage} (Histogram): per-stage
//     time
//
// Example Prometheus queries:
//
//   # Category cache hit rate
//   sum(rate(commerce_export_cache_hits_total[5m])) /
//   (sum(rate(commerce_export_cache_hits_total[5m])) + sum(rate(commerce_export_cache_misses_total[5m])))
//
//   # Run failure rate
//   rate(commerce_export_runs_total{status="failed"}[15m])
//
//   # P95 upstream latency per source
//   histogram_quantile(0.95, rate(commerce_export_request_duration_seconds_bucket[5m]))
//
//   # Warning volume per run
//   rate(commerce_export_enrich_warnings_total[15m]) / rate(commerce_export_runs_total[15m])

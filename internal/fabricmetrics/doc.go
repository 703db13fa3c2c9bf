// Package fabricmetrics exposes the prometheus counters and gauges a
// fabric.Manager reports over its lifetime.
//
// # Overview
//
// Metrics bundles the fabric's instrumentation behind one struct so the
// manager takes a single optional dependency instead of a handful of
// globals. A nil Metrics disables instrumentation entirely, which is
// what the tests use.
//
// # Series
//
//   - shardfabric_store_size: gauge, keys currently held by this node
//   - shardfabric_scale_up_total: counter, scale-up sequences initiated
//   - shardfabric_migration_chunks_total{outcome}: counter, chunk sends
//     by success/encode_failure/transport_failure
//   - shardfabric_broadcast_failures_total{event}: counter, failed event
//     fan-outs by event kind
//   - shardfabric_status_error_total{kind}: counter, Error-status entries
//     by error kind
//
// Handler exposes the default registry's scrape endpoint for whatever
// outer process embeds the fabric to serve on /metrics.
package fabricmetrics

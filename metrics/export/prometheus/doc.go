// Package prometheus exposes engine counters through client_golang.
//
// [Exporter] is a prometheus.Collector: register it with any registry, or
// mount [Exporter.Handler] for a standalone scrape endpoint. Counter names
// are goaccounts_*_total and the single histogram is
// goaccounts_resolve_latency_seconds.
//
// # What this package must NOT do
//
//   - Register with the global default registry.
//   - Mutate engine state.
package prometheus

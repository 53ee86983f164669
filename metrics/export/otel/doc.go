// Package otel publishes engine counters as OpenTelemetry observable
// instruments on a caller-supplied Meter.
//
// Counters keep the names used by the Prometheus exporter. The resolve
// latency histogram is reported as a cumulative gauge with one data point
// per upper bound (attribute [BucketKey]) plus a monotonic sample count.
// All instruments are observed from a single snapshot per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider or choose a reader.
//   - Mutate engine state.
package otel

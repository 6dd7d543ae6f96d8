// Package otel binds goKaltura counters and the API latency histogram to OpenTelemetry
// observable instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter family; labeled
// families (format, result, event_type) observe one data point per label value. The
// latency histogram is a pair of gauges, gokaltura_api_latency_seconds_bucket with an
// "le" attribute and gokaltura_api_latency_seconds_count. A single callback reads
// [goKaltura.Client.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate client state.
package otel

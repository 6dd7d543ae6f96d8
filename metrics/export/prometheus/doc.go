// Package prometheus renders goKaltura metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] accepts a [goKaltura.Client] and exposes an [http.Handler].
// Related counters share one family with a label:
//
//	gokaltura_ks_generated_total{format="v1|v2"}
//	gokaltura_ks_cache_total{result="hit|miss|error"}
//	gokaltura_audit_dropped_total{event_type="..."}
//
// The single histogram is gokaltura_api_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate client state.
package prometheus

package internaldefs

import (
	goKaltura "github.com/MrEthical07/goKaltura"
)

// Series is one counter of a family. Value is the family's label value; it is empty for
// unlabeled families.
type Series struct {
	ID    goKaltura.MetricID
	Value string
}

// CounterFamily is one exported counter name. Labeled families partition their
// counters on Label.
type CounterFamily struct {
	Name   string
	Help   string
	Label  string
	Series []Series
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   goKaltura.MetricID
	Name string
	Help string
}

// CounterFamilies lists every exported counter family in export order.
var CounterFamilies = []CounterFamily{
	{
		Name:  "gokaltura_ks_generated_total",
		Help:  "Session tokens generated locally, by wire format.",
		Label: "format",
		Series: []Series{
			{ID: goKaltura.MetricKSGeneratedV1, Value: "v1"},
			{ID: goKaltura.MetricKSGeneratedV2, Value: "v2"},
		},
	},
	{
		Name:   "gokaltura_ks_generation_failures_total",
		Help:   "Session token generation failures.",
		Series: []Series{{ID: goKaltura.MetricKSGenerationFailure}},
	},
	{
		Name:  "gokaltura_ks_cache_total",
		Help:  "KS cache lookups and writes, by result.",
		Label: "result",
		Series: []Series{
			{ID: goKaltura.MetricKSCacheHit, Value: "hit"},
			{ID: goKaltura.MetricKSCacheMiss, Value: "miss"},
			{ID: goKaltura.MetricKSCacheError, Value: "error"},
		},
	},
	{
		Name:   "gokaltura_api_requests_total",
		Help:   "API requests sent.",
		Series: []Series{{ID: goKaltura.MetricAPIRequest}},
	},
	{
		Name:   "gokaltura_api_failures_total",
		Help:   "API requests that failed or returned non-2xx.",
		Series: []Series{{ID: goKaltura.MetricAPIFailure}},
	},
}

// AuditDroppedName is the audit drop counter family, labeled by AuditDroppedLabel with
// one series per goKaltura.AuditEventTypes entry.
const (
	AuditDroppedName  = "gokaltura_audit_dropped_total"
	AuditDroppedHelp  = "Audit events that never reached the sink, by event type."
	AuditDroppedLabel = "event_type"
)

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goKaltura.MetricAPILatency, Name: "gokaltura_api_latency_seconds", Help: "API request latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching goKaltura's buckets.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed 8-bucket array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goKaltura "github.com/MrEthical07/goKaltura"
	"github.com/MrEthical07/goKaltura/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goKaltura.MetricsSnapshot
	AuditDroppedByType() map[string]uint64
}

// PrometheusExporter renders Client metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from client.
func NewPrometheusExporter(client *goKaltura.Client) *PrometheusExporter {
	return &PrometheusExporter{source: client}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any value exposing
// a snapshot and per-type audit drop counts.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current metrics. It returns "" while metrics are disabled and no
// audit event was dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	drops := p.source.AuditDroppedByType()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && len(drops) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, fam := range internaldefs.CounterFamilies {
		writeHeader(&b, fam.Name, fam.Help, "counter")
		for _, s := range fam.Series {
			writeSample(&b, fam.Name, fam.Label, s.Value, snapshot.Counters[s.ID])
		}
	}

	writeHeader(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	for _, eventType := range goKaltura.AuditEventTypes() {
		writeSample(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedLabel, eventType, drops[eventType])
	}

	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		writeHeader(&b, def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			writeSample(&b, def.Name+"_bucket", "le", le, cumulative[i])
		}
		writeSample(&b, def.Name+"_count", "", "", cumulative[len(cumulative)-1])
		// Snapshots carry bucket counts only.
		writeSample(&b, def.Name+"_sum", "", "", 0)
	}

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name, label, value string, v uint64) {
	b.WriteString(name)
	if label != "" {
		b.WriteByte('{')
		b.WriteString(label)
		b.WriteString(`="`)
		b.WriteString(escapeLabel(value))
		b.WriteString(`"}`)
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(v, 10))
	b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}

func escapeLabel(v string) string {
	v = escapeHelp(v)
	return strings.ReplaceAll(v, `"`, `\"`)
}

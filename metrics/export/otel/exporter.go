package otel

import (
	"context"
	"errors"
	"fmt"

	goKaltura "github.com/MrEthical07/goKaltura"
	"github.com/MrEthical07/goKaltura/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goKaltura.MetricsSnapshot
	AuditDroppedByType() map[string]uint64
}

// series is one labeled observation of a family, with its attribute set built once.
type series struct {
	id   goKaltura.MetricID
	opts metric.ObserveOption
}

type family struct {
	instrument metric.Int64ObservableCounter
	series     []series
}

type latency struct {
	id      goKaltura.MetricID
	buckets metric.Int64ObservableGauge
	le      []metric.ObserveOption
	count   metric.Int64ObservableGauge
}

// OTelExporter owns the callback registration. Close unregisters it.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	families   []family
	latencies  []latency
	dropped    metric.Int64ObservableCounter
	eventTypes []string
	eventOpts  []metric.ObserveOption
}

// NewOTelExporter registers observable instruments on meter that read from client.
func NewOTelExporter(meter metric.Meter, client *goKaltura.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

// NewOTelExporterFromSource registers observable instruments that read from source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterFamilies {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		f := family{instrument: ins, series: make([]series, len(def.Series))}
		for i, s := range def.Series {
			f.series[i] = series{id: s.ID, opts: labelOption(def.Label, s.Value)}
		}
		e.families = append(e.families, f)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription("Cumulative "+def.Help))
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription("Sample count of "+def.Help))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", def.Name, err)
		}
		l := latency{id: def.ID, buckets: buckets, count: count}
		for _, le := range internaldefs.HistogramBounds {
			l.le = append(l.le, labelOption("le", le))
		}
		e.latencies = append(e.latencies, l)
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.dropped = dropped
	e.eventTypes = goKaltura.AuditEventTypes()
	for _, eventType := range e.eventTypes {
		e.eventOpts = append(e.eventOpts, labelOption(internaldefs.AuditDroppedLabel, eventType))
	}
	observables = append(observables, dropped)

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for _, s := range f.series {
			o.ObserveInt64(f.instrument, int64(snapshot.Counters[s.id]), s.opts)
		}
	}
	for _, l := range e.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[l.id]))
		for i, opt := range l.le {
			o.ObserveInt64(l.buckets, int64(cumulative[i]), opt)
		}
		o.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]))
	}
	drops := e.source.AuditDroppedByType()
	for i, eventType := range e.eventTypes {
		o.ObserveInt64(e.dropped, int64(drops[eventType]), e.eventOpts[i])
	}
	return nil
}

// Close unregisters the callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

func labelOption(key, value string) metric.ObserveOption {
	if key == "" {
		return metric.WithAttributeSet(*attribute.EmptySet())
	}
	return metric.WithAttributeSet(attribute.NewSet(attribute.String(key, value)))
}

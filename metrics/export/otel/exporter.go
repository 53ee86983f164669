package otel

import (
	"context"
	"errors"
	"fmt"

	goAccounts "github.com/MrEthical07/goAccounts"
	"github.com/MrEthical07/goAccounts/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// BucketKey is the attribute carrying a latency bucket's upper bound.
const BucketKey = attribute.Key("le")

// Source is what the exporter reads on each collection cycle.
type Source interface {
	MetricsSnapshot() goAccounts.MetricsSnapshot
	EventsDropped() uint64
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithAttributes adds attrs to every observation, for example the instance
// name when several engines share one MeterProvider.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(e *Exporter) { e.common = append(e.common, attrs...) }
}

type latency struct {
	id      goAccounts.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableCounter
	bounds  []metric.ObserveOption
}

// Exporter mirrors engine counters into observable instruments. Names match
// the Prometheus exporter; the latency histogram becomes a cumulative bucket
// gauge keyed by BucketKey plus a sample counter.
type Exporter struct {
	source       Source
	common       []attribute.KeyValue
	base         metric.ObserveOption
	counters     map[goAccounts.MetricID]metric.Int64ObservableCounter
	latencies    []latency
	dropped      metric.Int64ObservableCounter
	registration metric.Registration
}

// NewExporter registers instruments on meter for engine.
func NewExporter(meter metric.Meter, engine *goAccounts.Engine, opts ...Option) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine, opts...)
}

// NewExporterFromSource registers instruments on meter that read source.
func NewExporterFromSource(meter metric.Meter, source Source, opts ...Option) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[goAccounts.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.base = metric.WithAttributeSet(attribute.NewSet(e.common...))

	var observables []metric.Observable
	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel: counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = c
		observables = append(observables, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		l, err := e.newLatency(meter, def)
		if err != nil {
			return nil, err
		}
		e.latencies = append(e.latencies, l)
		observables = append(observables, l.buckets, l.count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.EventsDroppedName,
		metric.WithDescription(internaldefs.EventsDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("otel: counter %s: %w", internaldefs.EventsDroppedName, err)
	}
	e.dropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) newLatency(meter metric.Meter, def internaldefs.HistogramDef) (latency, error) {
	l := latency{id: def.ID}

	var err error
	l.buckets, err = meter.Int64ObservableGauge(def.Name+internaldefs.BucketSuffix,
		metric.WithDescription(def.Help+" Cumulative count per upper bound."),
		metric.WithUnit("{request}"))
	if err != nil {
		return l, fmt.Errorf("otel: gauge %s: %w", def.Name, err)
	}
	l.count, err = meter.Int64ObservableCounter(def.Name+internaldefs.CountSuffix,
		metric.WithDescription(def.Help+" Sample count."))
	if err != nil {
		return l, fmt.Errorf("otel: counter %s: %w", def.Name, err)
	}

	for _, bound := range internaldefs.HistogramBounds {
		attrs := append([]attribute.KeyValue{BucketKey.String(bound)}, e.common...)
		l.bounds = append(l.bounds, metric.WithAttributeSet(attribute.NewSet(attrs...)))
	}
	return l, nil
}

// observe reads one snapshot so every instrument reports the same instant.
func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()

	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]), e.base)
	}
	for _, l := range e.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[l.id]))
		for i, opt := range l.bounds {
			o.ObserveInt64(l.buckets, int64(cumulative[i]), opt)
		}
		o.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]), e.base)
	}
	o.ObserveInt64(e.dropped, int64(e.source.EventsDropped()), e.base)
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

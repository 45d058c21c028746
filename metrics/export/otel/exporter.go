package otel

import (
	"context"
	"errors"
	"fmt"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Errors returned by NewOTelExporterFromSource.
var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// instrument backs one internaldefs.Def. For histograms value is the sample
// count and buckets carries the cumulative bucket counts.
type instrument struct {
	value   metric.Int64ObservableCounter
	buckets metric.Int64ObservableGauge
}

// OTelExporter publishes engine metrics as observable instruments. Values
// are read from one snapshot per collection cycle.
type OTelExporter struct {
	source       internaldefs.Source
	registration metric.Registration

	// instruments is indexed like internaldefs.Defs.
	instruments []instrument
	leSets      [goAccount.HistBucketCount]metric.ObserveOption
}

// NewOTelExporter registers instruments on meter for every engine metric.
func NewOTelExporter(meter metric.Meter, engine *goAccount.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments for any snapshot source.
// A histogram is published as <name>_count plus a <name>_bucket gauge with
// one point per "le" bound.
func NewOTelExporterFromSource(meter metric.Meter, source internaldefs.Source) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:      source,
		instruments: make([]instrument, len(internaldefs.Defs)),
	}
	for i, le := range internaldefs.BucketBounds {
		e.leSets[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
	}

	observables := make([]metric.Observable, 0, len(internaldefs.Defs)+1)
	for i, def := range internaldefs.Defs {
		name := def.Name
		if def.Kind == internaldefs.Histogram {
			name += "_count"
			g, err := meter.Int64ObservableGauge(def.Name+"_bucket", metric.WithDescription(def.Help+" Cumulative bucket counts."))
			if err != nil {
				return nil, fmt.Errorf("create gauge %s_bucket: %w", def.Name, err)
			}
			e.instruments[i].buckets = g
			observables = append(observables, g)
		}
		c, err := meter.Int64ObservableCounter(name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", name, err)
		}
		e.instruments[i].value = c
		observables = append(observables, c)
	}

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	samples, _ := internaldefs.Collect(e.source)
	for i, s := range samples {
		ins := e.instruments[i]
		o.ObserveInt64(ins.value, int64(s.Value))
		if ins.buckets == nil {
			continue
		}
		for b, n := range s.Buckets {
			o.ObserveInt64(ins.buckets, int64(n), e.leSets[b])
		}
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

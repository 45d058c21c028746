// Package otel publishes goAccount engine metrics through an OpenTelemetry
// Meter.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter. The
// login latency histogram becomes a _count counter and a _bucket gauge with
// one point per "le" bound. One callback reads the engine snapshot on each
// collection cycle. Callers own the MeterProvider.
package otel

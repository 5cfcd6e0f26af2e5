// Package otel binds recovery engine metrics to OpenTelemetry observable
// instruments.
//
// Each counter becomes an Int64ObservableCounter. The latency histogram is
// published as one gauge per cumulative bucket plus _count and _sum gauges.
// A single callback reads the engine snapshot once per collection.
//
// The caller owns the MeterProvider and supplies the Meter.
package otel

// Package otel publishes sessionfetch client metrics through OpenTelemetry
// observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per client counter and,
// for the resolve latency histogram, one Int64ObservableGauge per cumulative
// bucket plus count and sum gauges. A single callback reads the client
// snapshot on each collection. Callers own the MeterProvider.
package otel

// Package prometheus exposes sessionfetch client metrics as a Prometheus
// collector.
//
// [Exporter] implements prometheus.Collector over a client metrics snapshot.
// Counters are published as sessionfetch_*_total and the resolve latency as
// the sessionfetch_resolve_latency_seconds histogram. Register it on your own
// registry, or mount [Exporter.Handler] which uses a private one.
package prometheus

package prometheus

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/sessionfetch"
	"github.com/MrEthical07/sessionfetch/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() sessionfetch.MetricsSnapshot
}

type counterDesc struct {
	id   sessionfetch.MetricID
	desc *prom.Desc
}

// Exporter is a prometheus.Collector reading client snapshots at scrape time.
type Exporter struct {
	source     metricsSource
	counters   []counterDesc
	histograms []counterDesc
}

var _ prom.Collector = (*Exporter)(nil)

// NewExporter reads from client.
func NewExporter(client *sessionfetch.Client) *Exporter {
	return NewExporterFromSource(client)
}

// NewExporterFromSource reads from any value with a MetricsSnapshot method.
func NewExporterFromSource(source metricsSource) *Exporter {
	e := &Exporter{source: source}
	for _, def := range internaldefs.CounterDefs {
		e.counters = append(e.counters, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		e.histograms = append(e.histograms, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return e
}

func (e *Exporter) Describe(ch chan<- *prom.Desc) {
	for _, c := range e.counters {
		ch <- c.desc
	}
	for _, h := range e.histograms {
		ch <- h.desc
	}
}

// Collect emits nothing while client metrics are disabled.
func (e *Exporter) Collect(ch chan<- prom.Metric) {
	if e == nil || e.source == nil {
		return
	}
	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		return
	}

	for _, c := range e.counters {
		ch <- prom.MustNewConstMetric(c.desc, prom.CounterValue, float64(snapshot.Counters[c.id]))
	}

	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(sessionfetch.HistogramBounds))
		for i, bound := range sessionfetch.HistogramBounds {
			buckets[bound] = cumulative[i]
		}
		count := cumulative[len(cumulative)-1]
		ch <- prom.MustNewConstHistogram(h.desc, count, snapshot.HistogramSums[h.id], buckets)
	}
}

// Handler serves the exporter from a private registry.
func (e *Exporter) Handler() http.Handler {
	reg := prom.NewRegistry()
	reg.MustRegister(e)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

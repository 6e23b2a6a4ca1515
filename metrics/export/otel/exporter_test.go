package otel

import (
	"context"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/sessionfetch"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot sessionfetch.MetricsSnapshot
}

func (f *fakeSource) MetricsSnapshot() sessionfetch.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := sessionfetch.MetricsSnapshot{
		Counters:      make(map[sessionfetch.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms:    make(map[sessionfetch.MetricID][]uint64, len(f.snapshot.Histograms)),
		HistogramSums: make(map[sessionfetch.MetricID]float64, len(f.snapshot.HistogramSums)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	for k, v := range f.snapshot.HistogramSums {
		out.HistogramSums[k] = v
	}
	return out
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findInt64(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				return data.DataPoints[0].Value, true
			case metricdata.Gauge[int64]:
				return data.DataPoints[0].Value, true
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("sessionfetch-test")

	src := &fakeSource{snapshot: sessionfetch.MetricsSnapshot{
		Counters: map[sessionfetch.MetricID]uint64{
			sessionfetch.MetricRefreshSuccess: 3,
		},
		Histograms: map[sessionfetch.MetricID][]uint64{
			sessionfetch.MetricResolveLatency: {1, 1, 1, 1, 1, 1, 1, 1},
		},
		HistogramSums: map[sessionfetch.MetricID]float64{
			sessionfetch.MetricResolveLatency: 0.25,
		},
	}}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if v, ok := findInt64(rm, "sessionfetch_refresh_success_total"); !ok || v != 3 {
		t.Fatalf("expected refresh counter 3, got %d (found=%v)", v, ok)
	}
	if v, ok := findInt64(rm, "sessionfetch_resolve_latency_seconds_bucket_le_0_01"); !ok || v != 2 {
		t.Fatalf("expected cumulative bucket 2, got %d (found=%v)", v, ok)
	}
	if v, ok := findInt64(rm, "sessionfetch_resolve_latency_seconds_count"); !ok || v != 8 {
		t.Fatalf("expected count 8, got %d (found=%v)", v, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader()
	meter := provider.Meter("sessionfetch-test")

	if _, err := NewExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil client, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("sessionfetch-test")

	src := &fakeSource{snapshot: sessionfetch.MetricsSnapshot{
		Counters: map[sessionfetch.MetricID]uint64{
			sessionfetch.MetricFetchSent: 1,
		},
		Histograms: map[sessionfetch.MetricID][]uint64{
			sessionfetch.MetricResolveLatency: {1, 0, 0, 0, 0, 0, 0, 0},
		},
	}}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[sessionfetch.MetricFetchSent] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

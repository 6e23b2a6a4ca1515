package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/MrEthical07/sessionfetch"
)

type fakeSource struct {
	snapshot sessionfetch.MetricsSnapshot
}

func (f fakeSource) MetricsSnapshot() sessionfetch.MetricsSnapshot { return f.snapshot }

func gather(t *testing.T, e *Exporter) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prom.NewRegistry()
	if err := reg.Register(e); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{snapshot: sessionfetch.MetricsSnapshot{
		Counters:   map[sessionfetch.MetricID]uint64{},
		Histograms: map[sessionfetch.MetricID][]uint64{},
	}})

	if got := gather(t, exp); len(got) != 0 {
		t.Fatalf("expected no families for disabled metrics, got %d", len(got))
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{snapshot: sessionfetch.MetricsSnapshot{
		Counters: map[sessionfetch.MetricID]uint64{
			sessionfetch.MetricRefreshSuccess: 7,
			sessionfetch.MetricRepairSuccess:  1,
		},
		Histograms: map[sessionfetch.MetricID][]uint64{
			sessionfetch.MetricResolveLatency: {1, 2, 3, 4, 5, 6, 7, 8},
		},
		HistogramSums: map[sessionfetch.MetricID]float64{
			sessionfetch.MetricResolveLatency: 1.5,
		},
	}})

	families := gather(t, exp)

	refresh := families["sessionfetch_refresh_success_total"]
	if refresh == nil || refresh.GetType() != dto.MetricType_COUNTER || refresh.GetMetric()[0].GetCounter().GetValue() != 7 {
		t.Fatalf("unexpected refresh family %v", refresh)
	}
	if v := families["sessionfetch_fetch_sent_total"].GetMetric()[0].GetCounter().GetValue(); v != 0 {
		t.Fatalf("expected zero-valued counter to be present, got %v", v)
	}

	latency := families["sessionfetch_resolve_latency_seconds"]
	if latency == nil || latency.GetType() != dto.MetricType_HISTOGRAM {
		t.Fatalf("expected latency histogram, got %v", latency)
	}
	h := latency.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 36 || h.GetSampleSum() != 1.5 {
		t.Fatalf("unexpected histogram count=%d sum=%v", h.GetSampleCount(), h.GetSampleSum())
	}
	first := h.GetBucket()[0]
	if first.GetUpperBound() != 0.005 || first.GetCumulativeCount() != 1 {
		t.Fatalf("unexpected first bucket %v", first)
	}
}

func TestExporterOverLiveClient(t *testing.T) {
	m := sessionfetch.NewMetrics(sessionfetch.MetricsConfig{Enabled: true})
	m.Inc(sessionfetch.MetricFetchAnonymous)

	families := gather(t, NewExporterFromSource(metricsOnly{m}))
	if v := families["sessionfetch_fetch_anonymous_total"].GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Fatalf("expected anonymous fetch counter 1, got %v", v)
	}
	if _, ok := families["sessionfetch_resolve_latency_seconds"]; ok {
		t.Fatalf("latency histogram should be absent when disabled")
	}
}

type metricsOnly struct{ m *sessionfetch.Metrics }

func (s metricsOnly) MetricsSnapshot() sessionfetch.MetricsSnapshot { return s.m.Snapshot() }

func TestHandlerServesExpositionFormat(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{snapshot: sessionfetch.MetricsSnapshot{
		Counters:   map[sessionfetch.MetricID]uint64{sessionfetch.MetricResolveFastPath: 3},
		Histograms: map[sessionfetch.MetricID][]uint64{},
	}})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected text exposition content type, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "sessionfetch_resolve_fast_path_total 3") {
		t.Fatalf("expected fast path counter, got:\n%s", rec.Body.String())
	}
}

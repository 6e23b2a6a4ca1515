package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus instruments.
type Metrics struct {
	TokenRequests    *prometheus.CounterVec
	RepairRequests   *prometheus.CounterVec
	IssuedTokenBytes *prometheus.HistogramVec
	SessionsIssued   prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		TokenRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionfetch",
				Name:      "token_requests_total",
				Help:      "Refresh token grants by outcome",
			},
			[]string{"outcome"},
		),
		RepairRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionfetch",
				Name:      "repair_requests_total",
				Help:      "Session repair requests by outcome",
			},
			[]string{"outcome"}, // repaired, unchanged, rejected, rate_limited, error
		),
		IssuedTokenBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sessionfetch",
				Name:      "issued_token_bytes",
				Help:      "Size of issued access tokens",
				Buckets:   []float64{512, 1024, 2048, 4096, 6000, 8192, 16384},
			},
			[]string{"kind"}, // full, compact
		),
		SessionsIssued: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "sessionfetch",
				Name:      "sessions_issued_total",
				Help:      "Sessions created",
			},
		),
	}
}

func registerAuditDrops(reg prometheus.Registerer, dropped func() uint64) {
	promauto.With(reg).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "sessionfetch",
			Name:      "audit_drops_total",
			Help:      "Audit events dropped due to backpressure",
		},
		func() float64 { return float64(dropped()) },
	)
}

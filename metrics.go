package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	queries   *prometheus.CounterVec
	transfers *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rastercoding",
			Name:      "queries_total",
			Help:      "Coding queries by operation and outcome.",
		}, []string{"op", "result"}),
		transfers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rastercoding",
			Name:      "transfers_total",
			Help:      "Geocoding transfers by source geocoding and outcome.",
		}, []string{"geocoding", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rastercoding",
			Name:      "transfer_duration_seconds",
			Help:      "Time spent deriving subset rasters.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.3, 1, 3, 10},
		}, []string{"geocoding"}),
	}
}

func (m *metrics) observeQuery(op string, defined bool) {
	result := "ok"
	if !defined {
		result = "undefined"
	}
	m.queries.WithLabelValues(op, result).Inc()
}

func (m *metrics) observeTransfer(kind string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "unsupported"
	}
	m.transfers.WithLabelValues(kind, result).Inc()
	m.duration.WithLabelValues(kind).Observe(d.Seconds())
}

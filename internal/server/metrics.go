package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slareport_cycles_total",
		Help: "Evaluation cycles by outcome status.",
	}, []string{"status"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slareport_cycle_duration_seconds",
		Help:    "Wall time of one trigger-to-report cycle.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	collectorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slareport_collector_failures_total",
		Help: "Per-service signal fetch failures by kind.",
	}, []string{"kind"})

	reportsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slareport_reports_archived_total",
		Help: "Reports successfully written to the history store.",
	})
)

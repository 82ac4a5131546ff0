package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entriesDispatchedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "entries_dispatched_total",
			Help:      "Total dispatch attempts by payload kind and outcome.",
		},
		[]string{"kind", "status"}, // status: sent, failed, skipped_in_flight, skipped_locked, skipped_not_pending, ...
	)

	dispatchDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "duration_seconds",
			Help:      "Duration of a single entry dispatch, lock to status write.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	armedTimersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dispatch",
			Name:      "armed_timers",
			Help:      "Number of in-process timers waiting to fire.",
		},
	)

	providerRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of provider requests per phase.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "phase"},
	)

	entriesCreatedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "entries_created_total",
			Help:      "Total scheduled entries accepted or rejected at creation.",
		},
		[]string{"status"},
	)
)

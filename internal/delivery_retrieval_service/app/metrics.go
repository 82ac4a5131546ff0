package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	natsMessagesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_retrieval",
			Name:      "nats_messages_received_total",
			Help:      "Total number of NATS messages received.",
		},
		[]string{"subject_pattern"}, // e.g., "dlr.raw.*"
	)

	receiptsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_retrieval",
			Name:      "receipts_processed_total",
			Help:      "Total number of delivery receipts processed by outcome.",
		},
		[]string{"outcome"}, // confirmed, discrepancy, correlation_miss, ignored_pending, ...
	)

	receiptProcessingDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "delivery_retrieval",
			Name:      "receipt_processing_duration_seconds",
			Help:      "Duration of receipt processing.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider_name"},
	)
)

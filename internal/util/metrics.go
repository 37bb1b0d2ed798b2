package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_created_total",
		Help: "Total number of payment records created",
	})

	PaymentsReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_replayed_total",
		Help: "Total number of idempotent creation replays (same key, same record)",
	})

	PaymentsValidationFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_validation_failed_total",
		Help: "Total number of payment creation requests rejected by validation",
	}, []string{"field"})

	NotificationsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_received_total",
		Help: "Total number of provider notifications received",
	}, []string{"source"})

	NotificationsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_applied_total",
		Help: "Total number of notifications that changed payment state",
	})

	NotificationsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_duplicate_total",
		Help: "Total number of exact-retransmission notifications suppressed",
	})

	NotificationsOutOfOrderTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_out_of_order_total",
		Help: "Total number of notifications rejected by the watermark rule",
	})

	NotificationsOrphanTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_orphan_total",
		Help: "Total number of notifications for unknown payment ids",
	})

	ReconcileConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_version_conflicts_total",
		Help: "Total number of compare-and-swap conflicts retried by the reconciler",
	})

	ReconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_apply_latency_seconds",
		Help:    "Latency of applying a notification to a payment",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

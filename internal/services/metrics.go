package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// finalizeTotal counts payment finalizations by outcome (claimed, already_claimed, not_found, error)
	finalizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vbs_payment_finalize_total",
		Help: "Payment finalization attempts by outcome",
	}, []string{"outcome"})

	// confirmationTotal counts confirmation dispatches by result (sent, failed, skipped, resent)
	confirmationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vbs_confirmation_email_total",
		Help: "Confirmation email dispatches by result",
	}, []string{"result"})

	autoAssignTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vbs_group_autoassign_total",
		Help: "Auto-assignment runs by result",
	}, []string{"result"})

	autoAssignDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vbs_group_autoassign_duration_seconds",
		Help:    "Auto-assignment transaction duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	})

	assignmentsSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vbs_group_assignments_save_total",
		Help: "Manual assignment saves by result",
	}, []string{"result"})
)

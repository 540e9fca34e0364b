package paymentqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	admissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slot_payment_queue",
			Name:      "admissions_total",
			Help:      "Enqueue attempts by outcome",
		},
		[]string{"admission"},
	)

	deadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slot_payment_queue",
			Name:      "dead_lettered_total",
			Help:      "Envelopes moved to the dead-letter list by reason",
		},
		[]string{"reason"},
	)

	dequeuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slot_payment_queue",
			Name:      "dequeued_total",
			Help:      "Envelopes popped from the queue",
		},
	)

	reclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slot_payment_queue",
			Name:      "stale_reclaimed_total",
			Help:      "Active-order entries force-released by the cleanup sweep",
		},
	)
)

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pw_worker_pool",
			Name:      "processed_total",
			Help:      "Successfully processed payment envelopes",
		},
	)

	PaymentsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pw_worker_pool",
			Name:      "failed_total",
			Help:      "Failed loop iterations by reason",
		},
		[]string{"reason"},
	)

	LoopRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pw_worker_pool",
			Name:      "loop_restarts_total",
			Help:      "Worker loops respawned by the supervisor after a cooldown",
		},
		[]string{"worker_id"},
	)

	LoopsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pw_worker_pool",
			Name:      "loops_running",
			Help:      "Worker loops currently polling the queue",
		},
	)

	ProcessLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pw_worker_pool",
			Name:      "process_duration_seconds",
			Help:      "Processing latency per envelope, including timed out attempts",
			Buckets:   prometheus.DefBuckets,
		},
	)

	InflightJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pw_worker_pool",
			Name:      "inflight_jobs",
			Help:      "Attempts holding a concurrency slot (semaphore depth), abandoned ones included",
		},
	)
)

// Package metrics exposes the service's ambient Prometheus
// instrumentation. None of this is spec-mandated behavior; it is
// carried the way the reference corpus wires observability into
// business-logic services regardless of feature scope.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arena",
		Name:      "submissions_processed_total",
		Help:      "Submissions that finished evaluation, by challenge and terminal status.",
	}, []string{"challenge_id", "status"})

	EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arena",
		Name:      "evaluation_duration_seconds",
		Help:      "Wall-clock time spent evaluating a single submission.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"challenge_id"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arena",
		Name:      "queue_depth",
		Help:      "Submissions currently buffered in the evaluation queue.",
	})

	SubmissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arena",
		Name:      "submissions_rejected_total",
		Help:      "Submissions rejected before entering the queue, by reason.",
	}, []string{"reason"})
)

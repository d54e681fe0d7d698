package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "phasor",
		Subsystem: "oracle",
		Name:      "evaluations_total",
		Help:      "Total number of far-field oracle evaluations.",
	})

	degradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "phasor",
		Subsystem: "oracle",
		Name:      "degraded_total",
		Help:      "Evaluations that fell back to the zero pattern after a solve or extraction failure.",
	})

	solveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "phasor",
		Subsystem: "oracle",
		Name:      "solve_duration_seconds",
		Help:      "Wall-clock duration of one full solve plus far-field extraction.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)

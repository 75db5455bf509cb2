package provision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	results = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmkit",
		Subsystem: "provision",
		Name:      "results_total",
		Help:      "Provisioning attempts broken down by result kind.",
	}, []string{"result"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crmkit",
		Subsystem: "provision",
		Name:      "step_duration_seconds",
		Help:      "Duration of provisioning steps.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"step"})
)

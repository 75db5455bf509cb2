package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmkit",
		Subsystem: "guard",
		Name:      "requests_total",
		Help:      "Requests handled by the tenant guard broken down by outcome.",
	}, []string{"outcome"})

	bindDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crmkit",
		Subsystem: "guard",
		Name:      "bind_duration_seconds",
		Help:      "Time from resolution start until the tenant is published.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "crmkit",
		Subsystem: "guard",
		Name:      "bound_requests",
		Help:      "Requests currently holding a tenant binding.",
	})
)

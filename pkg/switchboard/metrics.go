package switchboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "crmkit",
		Subsystem: "switchboard",
		Name:      "pools_open",
		Help:      "Number of open tenant database pools.",
	})

	poolEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmkit",
		Subsystem: "switchboard",
		Name:      "pool_events_total",
		Help:      "Tenant pool lifecycle events broken down by event.",
	}, []string{"event"})

	activations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmkit",
		Subsystem: "switchboard",
		Name:      "activations_total",
		Help:      "Binding activations broken down by result.",
	}, []string{"result"})
)

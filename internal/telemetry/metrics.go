package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsDispatched counts items handed to an executor.
	ItemsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dynq",
		Subsystem: "queue",
		Name:      "items_dispatched_total",
		Help:      "Total queue items dispatched to an executor.",
	})

	ItemsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dynq",
		Subsystem: "queue",
		Name:      "items_completed_total",
		Help:      "Total execution attempts finished, labelled by resulting status.",
	}, []string{"status"})

	ItemsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dynq",
		Subsystem: "queue",
		Name:      "items_running",
		Help:      "Queue items currently executing.",
	})

	ItemDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dynq",
		Subsystem: "queue",
		Name:      "item_duration_seconds",
		Help:      "Wall time of one execution attempt in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	PersistenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dynq",
		Subsystem: "queue",
		Name:      "persistence_errors_total",
		Help:      "Queue store writes that failed and were logged without rollback.",
	}, []string{"operation"})

	AutoDispatchPaused = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dynq",
		Subsystem: "queue",
		Name:      "auto_dispatch_paused_total",
		Help:      "Times auto-dispatch was switched off by a failed attempt.",
	})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dynq",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Events not delivered, labelled by destination.",
	}, []string{"destination"})

	TransportRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dynq",
		Subsystem: "transport",
		Name:      "retries_total",
		Help:      "Batch requests retried after a transient failure.",
	}, []string{"environment"})
)

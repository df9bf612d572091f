// Package metrics exposes the execution core's prometheus collectors.
// They register on the default registry and are served from the query
// surface's /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HandlerPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stacker",
		Name:      "handler_passes_total",
		Help:      "Completed handler passes by handler.",
	}, []string{"handler"})

	OrdersSpawned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stacker",
		Name:      "orders_spawned_total",
		Help:      "Contract orders spawned from instrument orders.",
	})

	OrdersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stacker",
		Name:      "orders_submitted_total",
		Help:      "Broker orders accepted by the venue.",
	})

	SubmissionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stacker",
		Name:      "submissions_failed_total",
		Help:      "Submission attempts that produced no broker order.",
	})

	SubmissionsUnknown = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stacker",
		Name:      "submissions_unknown_total",
		Help:      "Submission attempts with an unknown outcome awaiting reconciliation.",
	})

	FillsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stacker",
		Name:      "fills_applied_total",
		Help:      "Fill notifications applied to broker orders.",
	})

	FillsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stacker",
		Name:      "fills_deduped_total",
		Help:      "Duplicate fill notifications discarded.",
	})

	BreaksRaised = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stacker",
		Name:      "position_breaks_total",
		Help:      "External position breaks reported.",
	})

	RollsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stacker",
		Name:      "rolls_started_total",
		Help:      "Forced rolls placed on the stacks.",
	})

	rollsInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stacker",
		Name:      "rolls_in_progress",
		Help:      "Instruments currently mid-roll.",
	})

	ActiveOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stacker",
		Name:      "active_orders",
		Help:      "Working orders per stack level.",
	}, []string{"level"})
)

func SetRollsInProgress(n int) {
	rollsInProgress.Set(float64(n))
}

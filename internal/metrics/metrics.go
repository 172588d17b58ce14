package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HighlightsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "highlight_courier_highlights_ingested_total",
		Help: "Total number of new highlights added to the store.",
	})

	DeliveryCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "highlight_courier_delivery_cycles_total",
		Help: "Delivery cycles by outcome.",
	}, []string{"status"})

	CoalescedTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "highlight_courier_coalesced_triggers_total",
		Help: "Scheduler triggers skipped because a cycle was still in flight.",
	})
)

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueueOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fintrack_queue_ops_total",
			Help: "Offline queue store operations by op and result",
		},
		[]string{"op", "result"}, // add|remove|update|clear , ok|error
	)

	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fintrack_dispatch_total",
			Help: "Writes routed by the dispatcher",
		},
		[]string{"route", "collection"}, // direct|queued
	)

	ReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fintrack_replays_total",
			Help: "Queued operation replays by outcome",
		},
		[]string{"outcome", "collection"}, // succeeded|failed|exhausted
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fintrack_queue_depth",
			Help: "Operations left in the offline queue after the last drain",
		},
	)

	DrainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fintrack_drain_duration_seconds",
			Help:    "Wall time of one drain pass",
			Buckets: prometheus.DefBuckets,
		},
	)
)

var registerOnce sync.Once

// MustRegister registers the collectors once per process.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			QueueOpsTotal,
			DispatchTotal,
			ReplaysTotal,
			QueueDepth,
			DrainDuration,
		)
	})
}

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

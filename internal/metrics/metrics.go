package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilegraph_tasks_submitted_total",
		Help: "The total number of tasks inserted into a task graph",
	}, []string{"codelet"})

	TasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilegraph_tasks_executed_total",
		Help: "The total number of codelet tasks executed, by backend",
	}, []string{"codelet", "backend"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tilegraph_task_duration_ms",
		Help:    "Duration of codelet task bodies in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 20), // 10us to ~5s
	}, []string{"backend"})

	// Distributed tile traffic
	Transfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilegraph_transfers_total",
		Help: "The total number of tile transfers between nodes",
	}, []string{"src", "dst"})

	TransferBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilegraph_transfer_bytes_total",
		Help: "The total number of bytes received from other nodes",
	})

	Flushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilegraph_flushes_total",
		Help: "The total number of tile cache flushes",
	})

	// Registered memory
	HandlesRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilegraph_handles_registered",
		Help: "Number of data handles currently registered",
	})

	RegisteredBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilegraph_registered_bytes",
		Help: "Bytes of memory currently registered with a runtime",
	})
)

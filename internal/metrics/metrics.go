package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqworker_events_received_total",
		Help: "Total number of inbound events, labelled by source (api, mq, cli).",
	}, []string{"source"})

	EventsDecodeFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqworker_events_decode_failed_total",
		Help: "Total number of inbound messages that were not a JSON object.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqworker_events_dropped_total",
		Help: "Total number of events rejected due to a full queue.",
	})

	EventsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqworker_events_dispatched_total",
		Help: "Total number of events that ran through their plugin plan.",
	})

	PluginExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqworker_plugin_executions_total",
		Help: "Total number of plugin handler runs, labelled by plugin and status.",
	}, []string{"plugin", "status"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mqworker_dispatch_duration_ms",
		Help:    "Per-event dispatch latency in milliseconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 1000, 2500},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mqworker_queue_utilization_ratio",
		Help: "Current dispatch queue utilization (0–1).",
	})

	SnapshotSwaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqworker_registry_snapshot_swaps_total",
		Help: "Total number of plugin registry snapshots published.",
	})

	PrefilterSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqworker_prefilter_skips_total",
		Help: "Total number of predicate evaluations skipped by the literal prefilter.",
	})

	SinkPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqworker_sink_publishes_total",
		Help: "Total number of sink publishes, labelled by sink kind and status.",
	}, []string{"kind", "status"})

	HealthRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqworker_health_runs_total",
		Help: "Total number of health shipper runs, labelled by status.",
	}, []string{"status"})

	HealthRecordsShipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqworker_health_records_shipped_total",
		Help: "Total number of health records written to the destination store.",
	})
)

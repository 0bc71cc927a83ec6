package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "attributa"
)

var (
	syncDurationBuckets = []float64{1, 2, 5, 10, 30, 60, 120, 300, 600, 1200}

	// Provisioning metrics
	ProvisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provisions_total",
		Help:      "Count of connector provisioning attempts.",
	}, []string{"connector_type", "status"})

	CompensationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compensation_failures_total",
		Help:      "Count of saga compensations that themselves failed and need manual intervention.",
	}, []string{"connector_type", "step"})

	// Synchronization metrics
	SyncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_run_duration_seconds",
		Help:      "Time taken for a full synchronization run over all connectors.",
		Buckets:   syncDurationBuckets,
	})

	IngestionCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingestion_calls_total",
		Help:      "Count of ingestion trigger calls, by connector type, window kind, and outcome.",
	}, []string{"connector_type", "window", "status"})

	SyncLastSuccessTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sync_last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last fully successful window sync per connector type.",
	}, []string{"connector_type", "window"})

	ConnectorsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connectors_total",
		Help:      "Number of connectors known to the registry at the last sync run.",
	})
)

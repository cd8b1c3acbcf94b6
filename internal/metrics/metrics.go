package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fleet_tracker"

// Metrics is the process-wide registry of ingestion counters. Owned by main
// and passed down explicitly; there is no ambient global state.
type Metrics struct {
	Registry *prometheus.Registry

	ReadingsAccepted    prometheus.Counter
	ReadingsRejected    prometheus.Counter
	PersistenceFailures prometheus.Counter
	DeadLettered        prometheus.Counter
	QueueDrops          prometheus.Counter

	AlertsCreated   *prometheus.CounterVec
	AlertsRefreshed prometheus.Counter

	RollupRuns       prometheus.Counter
	RollupFailures   prometheus.Counter
	ChunksCompressed prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return &Metrics{
		Registry: reg,
		ReadingsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_accepted_total",
			Help:      "Readings that passed the quality gate and were stored",
		}),
		ReadingsRejected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_rejected_total",
			Help:      "Readings rejected by the quality gate",
		}),
		PersistenceFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Series store writes that failed after a reading was accepted",
		}),
		DeadLettered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_dead_lettered_total",
			Help:      "Raw payloads pushed to the dead-letter list after a failed store write",
		}),
		QueueDrops: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_queue_drops_total",
			Help:      "Inbound messages dropped because the ingest queue was full",
		}),
		AlertsCreated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "New active alerts by type and severity",
		}, []string{"type", "severity"}),
		AlertsRefreshed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_refreshed_total",
			Help:      "Repeated violations folded into an existing active alert",
		}),
		RollupRuns: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollup_runs_total",
			Help:      "Completed rollup materialization passes",
		}),
		RollupFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollup_failures_total",
			Help:      "Rollup passes that ended in error",
		}),
		ChunksCompressed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_compressed_total",
			Help:      "Series store chunks compressed past the retention threshold",
		}),
	}
}

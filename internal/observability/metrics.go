// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Ingestion metrics
	FilesIngested     prometheus.Counter
	SnapshotsIngested prometheus.Counter
	IngestErrors      prometheus.Counter

	// Archiver metrics
	ContractsArchived  prometheus.Counter
	ContractsDiscarded prometheus.Counter
	ArchiveErrors      prometheus.Counter

	// Permutation metrics
	ContractsExpanded  prometheus.Counter
	FeatureRowsWritten prometheus.Counter
	ExpansionErrors    prometheus.Counter

	// Move primitive metrics
	MoveRetries  *prometheus.CounterVec
	MoveFailures *prometheus.CounterVec

	// Batch metrics
	BatchDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance registered on reg. Pass
// prometheus.DefaultRegisterer in the service, a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	namespace := "option_pipeline"
	factory := promauto.With(reg)

	return &Metrics{
		FilesIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Total number of snapshot files ingested",
		}),
		SnapshotsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "snapshots_total",
			Help:      "Total number of snapshot rows upserted into the hot table",
		}),
		IngestErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "errors_total",
			Help:      "Total number of file ingestion errors",
		}),
		ContractsArchived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archiver",
			Name:      "contracts_archived_total",
			Help:      "Total number of contracts moved from hot to archive",
		}),
		ContractsDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archiver",
			Name:      "contracts_discarded_total",
			Help:      "Total number of contracts dropped for too-short history",
		}),
		ArchiveErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archiver",
			Name:      "errors_total",
			Help:      "Total number of per-key archive errors",
		}),
		ContractsExpanded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permuter",
			Name:      "contracts_expanded_total",
			Help:      "Total number of contracts expanded into feature rows",
		}),
		FeatureRowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permuter",
			Name:      "feature_rows_total",
			Help:      "Total number of permutation feature rows written",
		}),
		ExpansionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permuter",
			Name:      "errors_total",
			Help:      "Total number of per-key expansion errors",
		}),
		MoveRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "move_retries_total",
			Help:      "Total number of per-key move retries after a busy store",
		}, []string{"stage"}),
		MoveFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "move_failures_total",
			Help:      "Total number of per-key moves abandoned after the retry ceiling",
		}, []string{"stage"}),
		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "batch_duration_seconds",
			Help:      "Duration of one worker batch",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"worker"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

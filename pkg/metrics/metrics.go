package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solidb_nodes_total",
			Help: "Total number of cluster members by status",
		},
		[]string{"status"},
	)

	CollectionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solidb_collections_total",
			Help: "Total number of collections by type",
		},
		[]string{"type"},
	)

	DocumentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solidb_documents_total",
			Help: "Total number of documents by database and collection",
		},
		[]string{"database", "collection"},
	)

	// Operation log / replication metrics
	OplogSeq = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "solidb_oplog_last_seq",
			Help: "Highest locally assigned operation log sequence number",
		},
	)

	ReplicationLagEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solidb_replication_lag_entries",
			Help: "Number of operation log entries this node has not yet pulled from a peer",
		},
		[]string{"peer"},
	)

	ReplicationPullsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solidb_replication_pulls_total",
			Help: "Total sync pulls by peer and outcome",
		},
		[]string{"peer", "outcome"},
	)

	ReplicationPullDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solidb_replication_pull_duration_seconds",
			Help:    "Duration of sync pulls from a peer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"peer"},
	)

	// Shard / rebalance metrics
	ShardsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solidb_shards_total",
			Help: "Total number of shards by role held on this node",
		},
		[]string{"role"},
	)

	ShardRebalanceMovesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "solidb_shard_rebalance_moves_total",
			Help: "Total number of shard placement changes applied by the rebalancer",
		},
	)

	CoordinatorForwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solidb_coordinator_forwards_total",
			Help: "Requests forwarded by the shard coordinator to a remote primary, by outcome",
		},
		[]string{"outcome"},
	)

	// Migration metrics
	MigrationBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solidb_migration_batches_total",
			Help: "Total migration batches processed by outcome",
		},
		[]string{"outcome"},
	)

	MigrationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solidb_migration_duration_seconds",
			Help:    "Duration of a full shard migration",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// SDBQL metrics
	QueryFastPathHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solidb_query_fast_path_hits_total",
			Help: "Queries served by a fast path (columnar aggregation, streaming bulk insert) by kind",
		},
		[]string{"kind"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solidb_query_duration_seconds",
			Help:    "SDBQL query execution duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Document operation latency
	DocInsertDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solidb_doc_insert_duration_seconds",
			Help:    "Document insert latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	DocUpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solidb_doc_update_duration_seconds",
			Help:    "Document update latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	DocDeleteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solidb_doc_delete_duration_seconds",
			Help:    "Document delete latency",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(CollectionsTotal)
	prometheus.MustRegister(DocumentsTotal)

	prometheus.MustRegister(OplogSeq)
	prometheus.MustRegister(ReplicationLagEntries)
	prometheus.MustRegister(ReplicationPullsTotal)
	prometheus.MustRegister(ReplicationPullDuration)

	prometheus.MustRegister(ShardsTotal)
	prometheus.MustRegister(ShardRebalanceMovesTotal)
	prometheus.MustRegister(CoordinatorForwardsTotal)

	prometheus.MustRegister(MigrationBatchesTotal)
	prometheus.MustRegister(MigrationDuration)

	prometheus.MustRegister(QueryFastPathHitsTotal)
	prometheus.MustRegister(QueryDuration)

	prometheus.MustRegister(DocInsertDuration)
	prometheus.MustRegister(DocUpdateDuration)
	prometheus.MustRegister(DocDeleteDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

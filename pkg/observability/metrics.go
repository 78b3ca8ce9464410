package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage run statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// StageRunsTotal counts stage runs by outcome
	StageRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medallion_stage_runs_total",
			Help: "Total number of stage runs",
		},
		[]string{"stage", "status"}, // status: success, failed
	)

	// StageDuration measures stage run duration in seconds
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medallion_stage_duration_seconds",
			Help:    "Stage run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"stage"},
	)

	// StagesRunning tracks stages currently executing
	StagesRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medallion_stages_running",
			Help: "Number of currently running stages",
		},
		[]string{"stage"},
	)

	// RowsRead counts rows read by a stage from its inputs
	RowsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medallion_rows_read_total",
			Help: "Total number of rows read",
		},
		[]string{"stage"},
	)

	// RowsWritten counts rows written by a stage to its outputs
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medallion_rows_written_total",
			Help: "Total number of rows written",
		},
		[]string{"stage"},
	)

	// RowsRejected counts malformed source rows dropped during ingestion
	RowsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medallion_rows_rejected_total",
			Help: "Total number of malformed rows skipped",
		},
		[]string{"stage"},
	)

	// DuplicatesRemoved counts exact-duplicate rows removed during standardization
	DuplicatesRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medallion_duplicates_removed_total",
			Help: "Total number of duplicate rows removed",
		},
		[]string{"stage"},
	)

	// StoreOperations counts table store operations
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medallion_store_operations_total",
			Help: "Total number of table store operations",
		},
		[]string{"store", "operation", "status"}, // operation: read, write, exists; status: success, error
	)

	// StoreOperationDuration measures table store operation time
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medallion_store_operation_duration_seconds",
			Help:    "Table store operation time",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"store", "operation"},
	)

	// ClickHouseQueries counts total number of ClickHouse queries executed
	ClickHouseQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medallion_clickhouse_queries_total",
			Help: "Total number of ClickHouse queries executed",
		},
		[]string{"query_type", "status"}, // query_type: select, insert, ddl; status: success, error
	)

	// TasksEnqueued counts pipeline tasks enqueued
	TasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medallion_tasks_enqueued_total",
			Help: "Total number of pipeline tasks enqueued",
		},
		[]string{"stage", "trigger"}, // trigger: schedule, manual
	)

	// LockConflicts counts writes refused because another writer held the table
	LockConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medallion_lock_conflicts_total",
			Help: "Total number of table lock conflicts",
		},
		[]string{"stage"},
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medallion_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordStageStart records the start of a stage run
func RecordStageStart(stage string) {
	StagesRunning.WithLabelValues(stage).Inc()
}

// RecordStageComplete records stage completion
func RecordStageComplete(stage, status string, duration float64) {
	StagesRunning.WithLabelValues(stage).Dec()
	StageRunsTotal.WithLabelValues(stage, status).Inc()
	StageDuration.WithLabelValues(stage).Observe(duration)
}

// RecordRows records the row counters of one stage run
func RecordRows(stage string, read, written, rejected, duplicates int) {
	RowsRead.WithLabelValues(stage).Add(float64(read))
	RowsWritten.WithLabelValues(stage).Add(float64(written))
	RowsRejected.WithLabelValues(stage).Add(float64(rejected))
	DuplicatesRemoved.WithLabelValues(stage).Add(float64(duplicates))
}

// RecordStoreOperation records a table store operation
func RecordStoreOperation(store, operation, status string, duration float64) {
	StoreOperations.WithLabelValues(store, operation, status).Inc()
	StoreOperationDuration.WithLabelValues(store, operation).Observe(duration)
}

// RecordClickHouseQuery records a ClickHouse query
func RecordClickHouseQuery(queryType, status string) {
	ClickHouseQueries.WithLabelValues(queryType, status).Inc()
}

// RecordTaskEnqueued records task enqueue
func RecordTaskEnqueued(stage, trigger string) {
	TasksEnqueued.WithLabelValues(stage, trigger).Inc()
}

// RecordLockConflict records a refused table lock
func RecordLockConflict(stage string) {
	LockConflicts.WithLabelValues(stage).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

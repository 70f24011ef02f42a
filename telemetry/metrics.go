package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// TwoPCBuckets for prepare/finish phase latencies
	TwoPCBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

	// RecoveryBuckets for crash-recovery replay durations
	RecoveryBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60}

	// CheckpointBuckets for post-checkpoint index snapshot durations
	CheckpointBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5}
)

// GXact Table Metrics
var (
	// GXactTableSize tracks the number of occupied slots in the GXact slab
	GXactTableSize Gauge = NoopStat{}

	// GXactTableCapacity tracks the fixed slab capacity (max_prepared_transactions)
	GXactTableCapacity Gauge = NoopStat{}

	// GXactReservationsTotal counts GID reservations by result (ok, duplicate_gid, table_full, disabled, gid_too_long)
	GXactReservationsTotal CounterVec = noopCounterVec{}

	// GXactLockWaitSeconds measures time spent waiting on the table-wide lock
	GXactLockWaitSeconds Histogram = NoopStat{}
)

// Prepare/Finish State Machine Metrics
var (
	// PrepareTotal counts EndPrepare outcomes by result (ok, error)
	PrepareTotal CounterVec = noopCounterVec{}

	// PrepareSeconds measures EndPrepare duration (WAL insert through visibility flip)
	PrepareSeconds Histogram = NoopStat{}

	// FinishTotal counts FinishPrepared outcomes by decision (commit, abort) and result
	FinishTotal CounterVec = noopCounterVec{}

	// FinishSeconds measures FinishPrepared duration end to end
	FinishSeconds Histogram = NoopStat{}

	// BackendCleanupTotal counts backend-scoped cleanup invocations (shutdown, error unwind)
	BackendCleanupTotal Counter = NoopStat{}
)

// Post-Checkpoint Index Metrics
var (
	// CheckpointIndexSize tracks entries currently tracked for the next checkpoint
	CheckpointIndexSize Gauge = NoopStat{}

	// CheckpointSnapshotSeconds measures SnapshotForCheckpoint duration
	CheckpointSnapshotSeconds Histogram = NoopStat{}

	// CheckpointDuplicateXIDTotal counts rejected Insert calls for an already-tracked XID
	CheckpointDuplicateXIDTotal Counter = NoopStat{}
)

// Recovery Driver Metrics
var (
	// RecoveryPrescanSeconds measures the prescan pass duration
	RecoveryPrescanSeconds Histogram = NoopStat{}

	// RecoverySeconds measures the full recovery replay duration
	RecoverySeconds Histogram = NoopStat{}

	// RecoveryRecordsTotal counts replayed prepare records by outcome (recovered, error)
	RecoveryRecordsTotal CounterVec = noopCounterVec{}

	// RecoveryOldestInProgressXID tracks the oldest in-progress XID found during prescan
	RecoveryOldestInProgressXID Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	// GXact Table Metrics
	GXactTableSize = NewGauge(
		"gxact_table_size",
		"Number of occupied slots in the prepared-transaction slab",
	)
	GXactTableCapacity = NewGauge(
		"gxact_table_capacity",
		"Fixed capacity of the prepared-transaction slab",
	)
	GXactReservationsTotal = NewCounterVec(
		"gxact_reservations_total",
		"GID reservations by result",
		[]string{"result"},
	)
	GXactLockWaitSeconds = NewHistogramWithBuckets(
		"gxact_lock_wait_seconds",
		"Time spent waiting on the GXact table lock",
		TwoPCBuckets,
	)

	// Prepare/Finish State Machine Metrics
	PrepareTotal = NewCounterVec(
		"prepare_total",
		"EndPrepare invocations by result",
		[]string{"result"},
	)
	PrepareSeconds = NewHistogramWithBuckets(
		"prepare_seconds",
		"EndPrepare duration in seconds",
		TwoPCBuckets,
	)
	FinishTotal = NewCounterVec(
		"finish_total",
		"FinishPrepared invocations by decision and result",
		[]string{"decision", "result"},
	)
	FinishSeconds = NewHistogramWithBuckets(
		"finish_seconds",
		"FinishPrepared duration in seconds",
		TwoPCBuckets,
	)
	BackendCleanupTotal = NewCounter(
		"backend_cleanup_total",
		"Backend-scoped cleanup invocations",
	)

	// Post-Checkpoint Index Metrics
	CheckpointIndexSize = NewGauge(
		"checkpoint_index_size",
		"Entries currently tracked in the post-checkpoint XID to LSN index",
	)
	CheckpointSnapshotSeconds = NewHistogramWithBuckets(
		"checkpoint_snapshot_seconds",
		"SnapshotForCheckpoint duration in seconds",
		CheckpointBuckets,
	)
	CheckpointDuplicateXIDTotal = NewCounter(
		"checkpoint_duplicate_xid_total",
		"Rejected checkpoint index inserts for an already-tracked XID",
	)

	// Recovery Driver Metrics
	RecoveryPrescanSeconds = NewHistogramWithBuckets(
		"recovery_prescan_seconds",
		"Recovery prescan pass duration in seconds",
		RecoveryBuckets,
	)
	RecoverySeconds = NewHistogramWithBuckets(
		"recovery_seconds",
		"Full recovery replay duration in seconds",
		RecoveryBuckets,
	)
	RecoveryRecordsTotal = NewCounterVec(
		"recovery_records_total",
		"Replayed prepare records by outcome",
		[]string{"outcome"},
	)
	RecoveryOldestInProgressXID = NewGauge(
		"recovery_oldest_in_progress_xid",
		"Oldest in-progress XID found during the prescan pass",
	)
}

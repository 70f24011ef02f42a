package telemetry

import (
	"sync"
	"time"
)

// TableStatsProvider is implemented by the GXact table so the collector can
// sample its occupancy without taking a reference to the twopc package
// (which in turn depends on telemetry for its own histograms/counters).
type TableStatsProvider interface {
	Occupied() int
	Capacity() int
}

// CheckpointStatsProvider is implemented by the post-checkpoint index.
type CheckpointStatsProvider interface {
	TrackedCount() int
}

// MetricsCollector periodically samples the GXact table and checkpoint index
// and pushes their occupancy into the corresponding gauges.
type MetricsCollector struct {
	table      TableStatsProvider
	checkpoint CheckpointStatsProvider
	interval   time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(table TableStatsProvider, checkpoint CheckpointStatsProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		table:      table,
		checkpoint: checkpoint,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the periodic collection.
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector.
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.table != nil {
		GXactTableSize.Set(float64(mc.table.Occupied()))
		GXactTableCapacity.Set(float64(mc.table.Capacity()))
	}

	if mc.checkpoint != nil {
		CheckpointIndexSize.Set(float64(mc.checkpoint.TrackedCount()))
	}
}

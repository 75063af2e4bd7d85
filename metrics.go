package ghostcore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordIngest is called after each ingest attempt. size is the document
	// size in bytes; err is nil if the document was queued.
	RecordIngest(size int, err error)

	// RecordProcess is called after the analysis worker finishes a document.
	// duration is the tokenize-to-store time; err is nil on success.
	RecordProcess(duration time.Duration, err error)

	// RecordAlloc is called after each arena heap allocation. ok reports
	// whether the allocation succeeded.
	RecordAlloc(size uint64, ok bool)

	// RecordFree is called after each arena heap release.
	RecordFree()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIngest(int, error)            {}
func (NoopMetricsCollector) RecordProcess(time.Duration, error) {}
func (NoopMetricsCollector) RecordAlloc(uint64, bool)           {}
func (NoopMetricsCollector) RecordFree()                        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	IngestCount       atomic.Int64
	IngestDropped     atomic.Int64
	IngestBytes       atomic.Int64
	ProcessCount      atomic.Int64
	ProcessErrors     atomic.Int64
	ProcessTotalNanos atomic.Int64
	AllocCount        atomic.Int64
	AllocFailed       atomic.Int64
	FreeCount         atomic.Int64
}

// RecordIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIngest(size int, err error) {
	b.IngestCount.Add(1)
	if err != nil {
		b.IngestDropped.Add(1)
		return
	}
	b.IngestBytes.Add(int64(size))
}

// RecordProcess implements MetricsCollector.
func (b *BasicMetricsCollector) RecordProcess(duration time.Duration, err error) {
	b.ProcessCount.Add(1)
	b.ProcessTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ProcessErrors.Add(1)
	}
}

// RecordAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAlloc(size uint64, ok bool) {
	b.AllocCount.Add(1)
	if !ok {
		b.AllocFailed.Add(1)
	}
}

// RecordFree implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFree() {
	b.FreeCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		IngestCount:     b.IngestCount.Load(),
		IngestDropped:   b.IngestDropped.Load(),
		IngestBytes:     b.IngestBytes.Load(),
		ProcessCount:    b.ProcessCount.Load(),
		ProcessErrors:   b.ProcessErrors.Load(),
		ProcessAvgNanos: b.avgProcessNanos(),
		AllocCount:      b.AllocCount.Load(),
		AllocFailed:     b.AllocFailed.Load(),
		FreeCount:       b.FreeCount.Load(),
	}
}

func (b *BasicMetricsCollector) avgProcessNanos() int64 {
	count := b.ProcessCount.Load()
	if count == 0 {
		return 0
	}
	return b.ProcessTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IngestCount     int64
	IngestDropped   int64
	IngestBytes     int64
	ProcessCount    int64
	ProcessErrors   int64
	ProcessAvgNanos int64
	AllocCount      int64
	AllocFailed     int64
	FreeCount       int64
}

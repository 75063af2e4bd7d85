package ghostcore

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/ghostcore/fiber"
	"github.com/hupe1980/ghostcore/ghost"
)

type options struct {
	arenaSize        uint64
	logRegionSize    uint64
	queueDepth       int
	maxDocumentSize  int
	zeroOnFree       bool
	reset            bool
	ingestLimit      rate.Limit
	ingestBurst      int
	schedulerIdle    time.Duration
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Runtime constructor behavior.
type Option func(*options)

// WithArenaSize overrides the reserved virtual arena size. The default is
// ghost.DefaultArenaSize (1 TiB); tests typically use a few MiB.
func WithArenaSize(size uint64) Option {
	return func(o *options) {
		o.arenaSize = size
	}
}

// WithLogRegionSize sets how much of the arena (after the control header) is
// reserved for the append-only vector log; everything above it belongs to
// the slab heap.
func WithLogRegionSize(size uint64) Option {
	return func(o *options) {
		o.logRegionSize = size
	}
}

// WithQueueDepth sets the ingest queue capacity. Must be a power of two.
func WithQueueDepth(depth int) Option {
	return func(o *options) {
		o.queueDepth = depth
	}
}

// WithMaxDocumentSize caps the size of a single ingested document.
func WithMaxDocumentSize(size int) Option {
	return func(o *options) {
		o.maxDocumentSize = size
	}
}

// WithZeroOnFree makes the heap scrub released payloads before reuse.
// Relevant for security-sensitive payloads; off by default because
// scrubbing commits every payload page.
func WithZeroOnFree(zero bool) Option {
	return func(o *options) {
		o.zeroOnFree = zero
	}
}

// WithReset discards any records in the vector log at startup by rewinding
// the header cursor.
func WithReset(reset bool) Option {
	return func(o *options) {
		o.reset = reset
	}
}

// WithIngestRate limits how fast Ingest accepts documents. Zero limit
// disables rate limiting (the default).
func WithIngestRate(limit rate.Limit, burst int) Option {
	return func(o *options) {
		o.ingestLimit = limit
		o.ingestBurst = burst
	}
}

// WithSchedulerIdle sets the scheduler Run-loop idle pause.
func WithSchedulerIdle(idle time.Duration) Option {
	return func(o *options) {
		o.schedulerIdle = idle
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		arenaSize:        ghost.DefaultArenaSize,
		logRegionSize:    1 << 30, // 1 GiB of record space
		queueDepth:       1024,
		maxDocumentSize:  1 << 20,
		schedulerIdle:    fiber.DefaultIdle,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

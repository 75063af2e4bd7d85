package ghostcore

import (
	"bufio"
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/ghostcore/fiber"
	"github.com/hupe1980/ghostcore/ghost"
	"github.com/hupe1980/ghostcore/internal/ingest"
	"github.com/hupe1980/ghostcore/internal/ring"
	"github.com/hupe1980/ghostcore/internal/vectorize"
	"github.com/hupe1980/ghostcore/slab"
)

// document is a heap-resident payload handed from Ingest to the analysis
// worker: an arena offset plus the byte length stored there.
type document struct {
	off  uint64
	size uint64
}

// Runtime owns the arena, the heap, the scheduler, and the analysis worker.
type Runtime struct {
	opts    options
	logger  *Logger
	metrics MetricsCollector

	ghost *ghost.Manager
	heap  *slab.Allocator
	sched *fiber.Scheduler

	queue   *ring.Buffer[document]
	tok     *vectorize.Tokenizer
	limiter *rate.Limiter
	logEnd  uint64

	running atomic.Bool
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// New reserves the arena, boots the paging pipeline, carves the slab heap,
// and initializes the scheduler with fiber 0 wrapping the calling goroutine.
// Initialization failures are fatal to the caller: the process cannot
// operate without its address space.
func New(optFns ...Option) (*Runtime, error) {
	o := applyOptions(optFns)

	mgr := ghost.New(
		ghost.WithSize(o.arenaSize),
		ghost.WithLogger(o.logger.Logger),
	)
	if err := mgr.Initialize(); err != nil {
		return nil, fmt.Errorf("ghostcore: arena boot: %w", err)
	}

	logEnd := ghost.HeaderSize + o.logRegionSize
	if logEnd >= mgr.Size() {
		mgr.Shutdown()
		return nil, fmt.Errorf("ghostcore: log region %d leaves no heap in arena of %d", o.logRegionSize, mgr.Size())
	}

	heap, err := slab.New(mgr, logEnd, mgr.Size()-logEnd, slab.WithZeroOnFree(o.zeroOnFree))
	if err != nil {
		mgr.Shutdown()
		return nil, fmt.Errorf("ghostcore: heap init: %w", err)
	}

	sched, err := fiber.New(
		fiber.WithIdle(o.schedulerIdle),
		fiber.WithLogger(o.logger.Logger),
	)
	if err != nil {
		mgr.Shutdown()
		return nil, err
	}

	queue, err := ring.New[document](o.queueDepth)
	if err != nil {
		mgr.Shutdown()
		return nil, fmt.Errorf("ghostcore: ingest queue: %w", err)
	}

	r := &Runtime{
		opts:    o,
		logger:  o.logger,
		metrics: o.metricsCollector,
		ghost:   mgr,
		heap:    heap,
		sched:   sched,
		queue:   queue,
		tok:     vectorize.NewTokenizer(),
		logEnd:  logEnd,
	}
	if o.ingestLimit > 0 {
		r.limiter = rate.NewLimiter(o.ingestLimit, o.ingestBurst)
	}
	if o.reset {
		mgr.ResetHeader()
		r.logger.Info("vector log reset")
	}
	return r, nil
}

// Start launches the analysis worker. The worker runs on its own OS-level
// goroutine, concurrent with the scheduler's host thread; the ingest queue
// is the only hand-off point between the two.
func (r *Runtime) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.group, ctx = errgroup.WithContext(ctx)
	r.group.Go(func() error {
		r.analysisWorker(ctx)
		return nil
	})

	r.logger.Info("runtime started",
		"arena_size", r.ghost.Size(),
		"log_region", r.opts.logRegionSize,
		"queue_depth", r.queue.Cap(),
	)
	return nil
}

// Ingest queues one document for analysis. The text is copied into a slab
// block so the caller's buffer can be reused immediately. On backpressure
// (queue full, heap exhausted, rate limited) the document is dropped and a
// non-nil error tells the caller which limit was hit; the runtime itself
// never crashes on ingest pressure.
func (r *Runtime) Ingest(text string) error {
	err := r.ingest(text)
	r.metrics.RecordIngest(len(text), err)
	r.logger.LogIngest(len(text), err)
	return err
}

func (r *Runtime) ingest(text string) error {
	if !r.running.Load() {
		return ErrNotRunning
	}
	if len(text) == 0 {
		return nil
	}
	if len(text) > r.opts.maxDocumentSize {
		return &ErrDocumentTooLarge{Size: len(text), Limit: r.opts.maxDocumentSize}
	}
	if r.limiter != nil && !r.limiter.Allow() {
		return ErrRateLimited
	}

	off := r.heap.Allocate(uint64(len(text)))
	r.metrics.RecordAlloc(uint64(len(text)), off != 0)
	if off == 0 {
		return ErrOutOfMemory
	}
	r.ghost.CopyIn(off, []byte(text))

	if !r.queue.Push(document{off: off, size: uint64(len(text))}) {
		r.heap.Free(off)
		r.metrics.RecordFree()
		return ErrQueueFull
	}
	return nil
}

// IngestSpool streams newline-delimited documents from a spool file
// ("-" for stdin; zstd and lz4 frames are decompressed transparently),
// yielding the scheduler between documents. Drop errors are logged and
// skipped; only I/O errors abort the stream.
func (r *Runtime) IngestSpool(path string) error {
	rc, err := ingest.Open(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), r.opts.maxDocumentSize+1)
	for scanner.Scan() {
		if err := r.Ingest(scanner.Text()); err != nil {
			r.logger.Warn("spool document dropped", "error", err)
		}
		r.sched.Yield()
	}
	return scanner.Err()
}

// analysisWorker consumes the ingest queue and turns payloads into
// quantized records. Single consumer by construction.
func (r *Runtime) analysisWorker(ctx context.Context) {
	for {
		doc, ok := r.queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		r.processDocument(doc)
	}
}

func (r *Runtime) processDocument(doc document) {
	start := time.Now()

	buf := make([]byte, doc.size)
	r.ghost.CopyOut(doc.off, buf)
	r.heap.Free(doc.off)
	r.metrics.RecordFree()

	counts := r.tok.Tokenize(string(buf))
	if len(counts) == 0 {
		r.metrics.RecordProcess(time.Since(start), nil)
		return
	}

	q := vectorize.Quantize(vectorize.Vectorize(counts))
	var record [vectorize.RecordSize]byte
	q.Encode(record[:])

	off, ok := r.ghost.PublishRecord(record[:], r.logEnd)
	var err error
	if !ok {
		err = ErrLogFull
	}
	r.metrics.RecordProcess(time.Since(start), err)
	r.logger.LogProcess(off, len(counts), err)
}

// Stats is a point-in-time telemetry snapshot for status displays.
type Stats struct {
	DocumentsStored uint64
	VocabularySize  int
	FaultCount      uint64
	ResidentPages   uint64
	ResidentBytes   uint64
	ArenaSize       uint64
	QueueLen        int
	Heap            slab.Stats
}

// Stats assembles a snapshot. The record count is an acquire-ordered read of
// the arena header, so records published by the worker are visible.
func (r *Runtime) Stats() Stats {
	return Stats{
		DocumentsStored: r.ghost.VectorCount(),
		VocabularySize:  r.tok.VocabularySize(),
		FaultCount:      r.ghost.FaultCount(),
		ResidentPages:   r.ghost.ResidentPages(),
		ResidentBytes:   r.ghost.ResidentBytes(),
		ArenaSize:       r.ghost.Size(),
		QueueLen:        r.queue.Len(),
		Heap:            r.heap.Stats(),
	}
}

// Scheduler exposes the fiber scheduler so callers can spawn fibers and
// enter the run loop.
func (r *Runtime) Scheduler() *fiber.Scheduler { return r.sched }

// Allocate carves size bytes from the arena heap and returns the payload
// offset, or ErrOutOfMemory. Offsets remain valid across mapping-address
// changes; resolve them with Pointer only when raw access is needed.
func (r *Runtime) Allocate(size uint64) (uint64, error) {
	off := r.heap.Allocate(size)
	r.metrics.RecordAlloc(size, off != 0)
	if off == 0 {
		return 0, ErrOutOfMemory
	}
	return off, nil
}

// Free releases a heap offset previously returned by Allocate.
func (r *Runtime) Free(off uint64) {
	r.heap.Free(off)
	r.metrics.RecordFree()
}

// Pointer translates an arena offset to a raw address.
func (r *Runtime) Pointer(off uint64) (unsafe.Pointer, error) {
	return r.ghost.Pointer(off)
}

// Shutdown stops the analysis worker and releases the arena reservation.
// Idempotent.
func (r *Runtime) Shutdown() error {
	if r.running.CompareAndSwap(true, false) {
		r.cancel()
		if err := r.group.Wait(); err != nil {
			return err
		}
	}
	return r.ghost.Shutdown()
}

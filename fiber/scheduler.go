package fiber

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/klauspost/cpuid/v2"
)

// ErrCPUUnsupported is returned when the host CPU lacks a required feature.
// Continuing without it would corrupt vectorized record processing silently,
// so callers must treat this as fatal.
var ErrCPUUnsupported = errors.New("fiber: required CPU feature missing")

// DefaultIdle is how long Run sleeps between rounds so an idle scheduler
// does not spin a core at 100%.
const DefaultIdle = time.Millisecond

// Scheduler owns an ordered set of fibers and drives them round-robin.
type Scheduler struct {
	fibers  []*Fiber
	current int
	idle    time.Duration
	logger  *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithIdle sets the Run-loop idle pause. Zero disables idling.
func WithIdle(idle time.Duration) Option {
	return func(s *Scheduler) {
		s.idle = idle
	}
}

// WithLogger sets the structured logger. Nil disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New verifies required CPU features and constructs a scheduler whose fiber 0
// wraps the calling goroutine. Fiber 0 owns no spawned context; it simply is
// the host, captured at the first switch away from it.
func New(opts ...Option) (*Scheduler, error) {
	if err := verifyCPUFeatures(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		idle:   DefaultIdle,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	main := &Fiber{
		id:     0,
		name:   "main",
		resume: make(chan struct{}),
		main:   true,
	}
	s.fibers = append(s.fibers, main)

	s.logger.Debug("scheduler initialized",
		"cpu", cpuid.CPU.BrandName,
		"cores", cpuid.CPU.PhysicalCores,
	)
	return s, nil
}

// verifyCPUFeatures checks the baseline the record quantizer relies on.
func verifyCPUFeatures() error {
	if runtime.GOARCH == "amd64" && !cpuid.CPU.Has(cpuid.SSE2) {
		return fmt.Errorf("%w: SSE2", ErrCPUUnsupported)
	}
	return nil
}

// Spawn creates a fiber that will run entry on its first switch-in and
// appends it to the run order. Spawning with a nil entry is a fatal
// programmer error and panics.
func (s *Scheduler) Spawn(name string, entry EntryFunc) *Fiber {
	if entry == nil {
		panic("fiber: Spawn called with nil entry")
	}

	f := &Fiber{
		id:     uint64(len(s.fibers)),
		name:   name,
		resume: make(chan struct{}),
	}
	s.fibers = append(s.fibers, f)
	go s.trampoline(f, entry)

	s.logger.Debug("fiber spawned", "id", f.id, "name", name)
	return f
}

// Yield advances the cursor round-robin and switches to the selected fiber.
// Yielding to oneself is a no-op: the scheduler never switches a fiber into
// itself.
func (s *Scheduler) Yield() {
	prev := s.fibers[s.current]
	s.current = (s.current + 1) % len(s.fibers)
	next := s.fibers[s.current]
	if next == prev {
		return
	}
	switchTo(prev, next)
}

// Run drives the scheduler forever, idling briefly between rounds. It never
// returns under normal operation; the only exit path is process termination.
// Must be called from fiber 0.
func (s *Scheduler) Run() {
	for {
		s.Yield()
		if s.idle > 0 {
			time.Sleep(s.idle)
		}
	}
}

// Current returns the running fiber.
func (s *Scheduler) Current() *Fiber {
	return s.fibers[s.current]
}

// Fibers returns a read-only snapshot of the fiber set in spawn order, for
// telemetry consumers.
func (s *Scheduler) Fibers() []*Fiber {
	out := make([]*Fiber, len(s.fibers))
	copy(out, s.fibers)
	return out
}

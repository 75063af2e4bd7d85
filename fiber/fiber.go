// Package fiber provides cooperatively scheduled user-mode execution
// contexts with deterministic round-robin ordering.
//
// A fiber is the Go-native rendering of a forged register frame: an opaque
// context owning a parked goroutine and a handoff channel. Switching is a
// pure handoff — resume the next context, park the current one — with no
// locks and no allocation after spawn. Exactly one fiber runs at a time per
// Scheduler; there is no timer preemption, and a fiber runs until it calls
// Yield.
//
// All Scheduler methods must be called from the currently running fiber
// (fiber 0, wrapping the caller of New, counts). The fiber set is never
// mutated concurrently, so no locking is needed.
package fiber

import (
	"sync/atomic"
)

// EntryFunc is the body of a spawned fiber.
type EntryFunc func()

// Fiber is a cooperatively scheduled execution context.
type Fiber struct {
	id        uint64
	name      string
	resume    chan struct{}
	completed atomic.Bool
	main      bool
}

// ID returns the fiber's position in spawn order. Fiber 0 wraps the host
// goroutine.
func (f *Fiber) ID() uint64 { return f.id }

// Name returns the name given at spawn.
func (f *Fiber) Name() string { return f.name }

// Completed reports whether the fiber's entry function has returned. A
// completed fiber remains schedulable as a no-op rather than being removed,
// so indices held elsewhere stay valid.
func (f *Fiber) Completed() bool { return f.completed.Load() }

// Main reports whether this is fiber 0.
func (f *Fiber) Main() bool { return f.main }

// trampoline is the common entry point of every spawned fiber. It parks
// until the first switch-in, runs the entry exactly once, marks the fiber
// completed, and then yields forever: a fiber never falls off the end and
// never returns into the scheduler's call stack.
func (s *Scheduler) trampoline(f *Fiber, entry EntryFunc) {
	<-f.resume
	entry()
	f.completed.Store(true)
	for {
		s.Yield()
	}
}

// switchTo resumes next and parks prev until it is switched back in.
func switchTo(prev, next *Fiber) {
	next.resume <- struct{}{}
	<-prev.resume
}

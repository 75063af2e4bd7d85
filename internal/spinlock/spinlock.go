// Package spinlock provides a minimal test-and-set mutual exclusion primitive
// for short critical sections.
//
// The lock is not reentrant and must not be held across any operation that can
// block for an unbounded time; it is intended to guard O(1) bookkeeping only.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

// Lock is a test-and-set spinlock. The zero value is unlocked.
type Lock struct {
	state atomic.Bool
}

// Acquire busy-waits until the lock is held, yielding the processor between
// attempts.
func (l *Lock) Acquire() {
	for {
		if l.state.CompareAndSwap(false, true) {
			return
		}
		// Test before retrying the CAS to avoid cache-line ping-pong.
		for l.state.Load() {
			runtime.Gosched()
		}
	}
}

// TryAcquire attempts to take the lock without spinning.
func (l *Lock) TryAcquire() bool {
	return l.state.CompareAndSwap(false, true)
}

// Release releases the lock. Calling Release on an unlocked Lock is a
// programming error and leaves the lock unlocked.
func (l *Lock) Release() {
	l.state.Store(false)
}

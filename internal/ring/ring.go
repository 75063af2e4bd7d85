// Package ring implements a lock-free single-producer single-consumer ring
// buffer.
//
// Exactly one goroutine may call Push and exactly one goroutine may call
// Pop/Peek. Under that contract no locks are needed: the producer publishes a
// slot by storing the tail index after the element write, and the consumer
// releases a slot by storing the head index after the element read. Go's
// atomic operations provide the required acquire/release ordering.
package ring

import (
	"errors"
	"math/bits"
	"sync/atomic"
)

// ErrCapacity is returned when the requested capacity is not a power of two.
var ErrCapacity = errors.New("ring: capacity must be a positive power of two")

type paddedUint64 struct {
	v atomic.Uint64
	_ [56]byte // pad to a full cache line to avoid false sharing
}

// Buffer is a bounded SPSC queue of T.
type Buffer[T any] struct {
	head paddedUint64 // next slot to read, advanced by the consumer
	tail paddedUint64 // next slot to write, advanced by the producer
	mask uint64
	buf  []T
}

// New creates a Buffer with the given capacity, which must be a power of two.
// The buffer holds at most capacity-1 elements.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 || bits.OnesCount(uint(capacity)) != 1 {
		return nil, ErrCapacity
	}
	return &Buffer[T]{
		mask: uint64(capacity - 1),
		buf:  make([]T, capacity),
	}, nil
}

// Push enqueues item. It returns false if the buffer is full and never
// blocks. Producer-side only.
func (b *Buffer[T]) Push(item T) bool {
	tail := b.tail.v.Load()
	next := (tail + 1) & b.mask
	if next == b.head.v.Load() {
		return false // full
	}
	b.buf[tail] = item
	b.tail.v.Store(next) // publish after the element write
	return true
}

// Pop dequeues the oldest item. It returns false if the buffer is empty and
// never blocks. Consumer-side only.
func (b *Buffer[T]) Pop() (T, bool) {
	head := b.head.v.Load()
	if head == b.tail.v.Load() {
		var zero T
		return zero, false // empty
	}
	item := b.buf[head]
	var zero T
	b.buf[head] = zero // release the slot for GC
	b.head.v.Store((head + 1) & b.mask)
	return item, true
}

// Peek returns the oldest item without removing it. Consumer-side only.
func (b *Buffer[T]) Peek() (T, bool) {
	head := b.head.v.Load()
	if head == b.tail.v.Load() {
		var zero T
		return zero, false
	}
	return b.buf[head], true
}

// Len returns the current number of buffered elements. The value is a
// point-in-time snapshot; it is exact only from the producer or consumer
// goroutine.
func (b *Buffer[T]) Len() int {
	head := b.head.v.Load()
	tail := b.tail.v.Load()
	return int((tail - head) & b.mask)
}

// Cap returns the maximum number of elements the buffer can hold.
func (b *Buffer[T]) Cap() int {
	return len(b.buf) - 1
}

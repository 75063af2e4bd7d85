// Package slab implements a boundary-tagged slab allocator over an abstract
// memory region addressed by offsets.
//
// # Block layout
//
//	offset (64-byte aligned)
//	+---------------------------------------------------------------+
//	| Header (64 bytes): size|freeBit, padded to a full cache line  |
//	+---------------------------------------------------------------+ <- payload, 64-byte aligned
//	| payload                                                       |
//	|   if free: FreeNode{next, prev} offsets overlay the payload   |
//	+---------------------------------------------------------------+
//	| Footer (8 bytes): copy of size|freeBit, for left coalescing   |
//	+---------------------------------------------------------------+
//
// Free blocks form a doubly linked intrusive list whose link fields are
// arena-relative offsets, not pointers, so the structure stays valid if the
// arena's mapping address changes. The header/footer pair makes both-sided
// coalescing O(1). All block boundaries and payload addresses are 64-byte
// aligned for SIMD and cache-line isolation.
//
// Every public operation holds the allocator's spinlock for its full
// duration. The lock is not reentrant. Accesses to the backing memory may
// fault and be healed by the paging layer; healing never touches this lock.
package slab

import (
	"errors"
	"sync/atomic"

	"github.com/hupe1980/ghostcore/internal/spinlock"
)

// Memory abstracts word-granular access to the region backing the allocator.
// Offsets are region-global (the same offsets handed out by Allocate).
//
// Implementations must tolerate access to any offset within the region; the
// paging-backed implementation heals faults transparently.
type Memory interface {
	Load64(off uint64) uint64
	Store64(off uint64, v uint64)
	ZeroRange(off, n uint64)
}

const (
	// Alignment is the alignment of every block boundary and payload.
	Alignment = 64
	// HeaderSize is the size of a block header. A full cache line, so the
	// payload that follows is itself 64-byte aligned and header updates do
	// not false-share with payload data.
	HeaderSize = 64
	// FooterSize is the size of the boundary-tag copy at the end of a block.
	FooterSize = 8
	// MinBlockSize is the smallest block the allocator will carve.
	MinBlockSize = 128

	freeBit  = uint64(1)
	sizeMask = ^freeBit

	// nilOffset terminates the free list. All-ones is never a valid block
	// offset; 0 cannot serve because a region starting at offset 0 places a
	// legitimate block there.
	nilOffset = ^uint64(0)
)

var (
	// ErrRegionTooSmall is returned when the aligned region cannot hold a
	// single minimum block.
	ErrRegionTooSmall = errors.New("slab: region too small for one block")
)

// Stats is a snapshot of allocator counters.
type Stats struct {
	Allocs       uint64
	Frees        uint64
	InUseBytes   uint64 // block bytes (headers and footers included)
	FailedAllocs uint64
}

type atomicStats struct {
	allocs       atomic.Uint64
	frees        atomic.Uint64
	inUseBytes   atomic.Uint64
	failedAllocs atomic.Uint64
}

// Allocator manages [start, end) of mem as boundary-tagged blocks.
type Allocator struct {
	mem Memory
	mu  spinlock.Lock

	first uint64 // offset of the first block (aligned region start)
	end   uint64 // one past the last block byte

	freeHead uint64 // offset of the free-list head block, nilOffset if none

	zeroOnFree bool

	stats atomicStats
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithZeroOnFree makes Free scrub the payload of released blocks before they
// become reusable. Off by default: scrubbing touches every payload page,
// which forces backing pages to be committed.
func WithZeroOnFree(zero bool) Option {
	return func(a *Allocator) {
		a.zeroOnFree = zero
	}
}

// New initializes an allocator over [start, start+size) of mem: the start is
// aligned up to 64 bytes and the remaining space is carved into one giant
// free block. Returns ErrRegionTooSmall if the aligned region cannot hold a
// minimum block.
func New(mem Memory, start, size uint64, opts ...Option) (*Allocator, error) {
	a := &Allocator{mem: mem}
	for _, opt := range opts {
		opt(a)
	}

	aligned := alignUp(start)
	if aligned-start >= size {
		return nil, ErrRegionTooSmall
	}
	usable := (size - (aligned - start)) &^ (Alignment - 1) // keep the end boundary aligned
	if usable < MinBlockSize {
		return nil, ErrRegionTooSmall
	}

	a.first = aligned
	a.end = aligned + usable

	a.mu.Acquire()
	a.setBlock(aligned, usable, true)
	a.mem.Store64(nodeNext(aligned), nilOffset)
	a.mem.Store64(nodePrev(aligned), nilOffset)
	a.freeHead = aligned
	a.mu.Release()

	return a, nil
}

// Allocate returns the arena offset of a 64-byte aligned payload of at least
// size bytes, or 0 if the region is exhausted or too fragmented. Offset 0 is
// never a valid payload address, so callers must treat 0 as out-of-memory.
func (a *Allocator) Allocate(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	// Bound the request by the region's capacity before any rounding: a size
	// near 2^64 would wrap alignUp and collapse required to a tiny block.
	if size > a.end-a.first-HeaderSize-FooterSize {
		a.stats.failedAllocs.Add(1)
		return 0
	}

	payload := alignUp(size)
	required := alignUp(HeaderSize + payload + FooterSize)

	a.mu.Acquire()
	defer a.mu.Release()

	// First fit from the list head.
	for cur := a.freeHead; cur != nilOffset; cur = a.mem.Load64(nodeNext(cur)) {
		blockSize := blockSize(a.mem.Load64(cur))
		if blockSize < required {
			continue
		}

		remainder := blockSize - required
		if remainder >= HeaderSize+Alignment+FooterSize {
			// Split: shrink this block to exactly the request and splice the
			// remainder into the list in its place, preserving neighbor links.
			a.setBlock(cur, required, false)

			rest := cur + required
			a.setBlock(rest, remainder, true)
			a.replaceNode(cur, rest)
		} else {
			// Remainder too small to stand alone: hand out the whole block.
			a.unlink(cur)
			a.setBlock(cur, blockSize, false)
			required = blockSize
		}

		a.stats.allocs.Add(1)
		a.stats.inUseBytes.Add(required)
		return cur + HeaderSize
	}

	a.stats.failedAllocs.Add(1)
	return 0
}

// Free releases the block whose payload starts at payloadOff. Freeing offset
// 0 or an already-free block is a no-op; freeing an offset that was never
// returned by Allocate is undefined. Adjacent free neighbors are coalesced
// immediately on both sides.
func (a *Allocator) Free(payloadOff uint64) {
	if payloadOff == 0 {
		return
	}
	blockOff := payloadOff - HeaderSize

	a.mu.Acquire()
	defer a.mu.Release()

	word := a.mem.Load64(blockOff)
	if isFree(word) {
		return // double free
	}
	size := blockSize(word)

	if a.zeroOnFree {
		a.mem.ZeroRange(payloadOff, size-HeaderSize-FooterSize)
	}

	a.stats.frees.Add(1)
	a.stats.inUseBytes.Add(^(size - 1)) // atomic subtract

	a.setBlock(blockOff, size, true)

	// Coalesce right: absorb a free successor.
	if next := blockOff + size; next < a.end {
		nextWord := a.mem.Load64(next)
		if isFree(nextWord) {
			a.unlink(next)
			size += blockSize(nextWord)
			a.setBlock(blockOff, size, true)
		}
	}

	// Coalesce left: the predecessor's footer sits directly before our header.
	if blockOff > a.first {
		footer := a.mem.Load64(blockOff - FooterSize)
		if isFree(footer) {
			prev := blockOff - blockSize(footer)
			// The left neighbor is already on the free list; grow it in place.
			a.setBlock(prev, blockSize(footer)+size, true)
			return
		}
	}

	a.insertHead(blockOff)
}

// Stats returns a snapshot of the allocator counters.
func (a *Allocator) Stats() Stats {
	return Stats{
		Allocs:       a.stats.allocs.Load(),
		Frees:        a.stats.frees.Load(),
		InUseBytes:   a.stats.inUseBytes.Load(),
		FailedAllocs: a.stats.failedAllocs.Load(),
	}
}

// Bounds returns the managed region [first block, end).
func (a *Allocator) Bounds() (start, end uint64) {
	return a.first, a.end
}

// --- block primitives ---

func alignUp(v uint64) uint64 {
	return (v + Alignment - 1) &^ (Alignment - 1)
}

func pack(size uint64, free bool) uint64 {
	word := size & sizeMask
	if free {
		word |= freeBit
	}
	return word
}

func blockSize(word uint64) uint64 { return word & sizeMask }
func isFree(word uint64) bool      { return word&freeBit != 0 }

// setBlock writes the header and the matching footer of the block at off.
func (a *Allocator) setBlock(off, size uint64, free bool) {
	word := pack(size, free)
	a.mem.Store64(off, word)
	a.mem.Store64(off+size-FooterSize, word)
}

func nodeNext(blockOff uint64) uint64 { return blockOff + HeaderSize }
func nodePrev(blockOff uint64) uint64 { return blockOff + HeaderSize + 8 }

// insertHead pushes the free block at off onto the list head.
func (a *Allocator) insertHead(off uint64) {
	a.mem.Store64(nodeNext(off), a.freeHead)
	a.mem.Store64(nodePrev(off), nilOffset)
	if a.freeHead != nilOffset {
		a.mem.Store64(nodePrev(a.freeHead), off)
	}
	a.freeHead = off
}

// unlink removes the free block at off from the list.
func (a *Allocator) unlink(off uint64) {
	next := a.mem.Load64(nodeNext(off))
	prev := a.mem.Load64(nodePrev(off))
	if prev != nilOffset {
		a.mem.Store64(nodeNext(prev), next)
	} else {
		a.freeHead = next
	}
	if next != nilOffset {
		a.mem.Store64(nodePrev(next), prev)
	}
}

// replaceNode splices newOff into the list position held by oldOff.
func (a *Allocator) replaceNode(oldOff, newOff uint64) {
	next := a.mem.Load64(nodeNext(oldOff))
	prev := a.mem.Load64(nodePrev(oldOff))
	a.mem.Store64(nodeNext(newOff), next)
	a.mem.Store64(nodePrev(newOff), prev)
	if prev != nilOffset {
		a.mem.Store64(nodeNext(prev), newOff)
	} else {
		a.freeHead = newOff
	}
	if next != nilOffset {
		a.mem.Store64(nodePrev(next), newOff)
	}
}

//go:build unix

// Package ghost implements a demand-paged virtual arena.
//
// A Manager reserves a terabyte-scale address range with no access rights and
// no physical commitment. Memory is materialized lazily: the first access to
// an uncommitted page faults, the guard intercepts the fault, grants
// read+write access to exactly that page, and re-executes the access. Code
// above this package sees an ordinary, infinitely patient byte range
// addressed by offsets.
//
// Faults outside the reserved range are never absorbed; they propagate as
// runtime panics so genuine memory-safety bugs stay diagnosable.
package ghost

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sys/unix"
)

const (
	// DefaultArenaSize is 1 TiB. Kept as an explicit 64-bit literal: this
	// constant famously overflows when someone rewrites it as a 32-bit shift.
	DefaultArenaSize uint64 = 1099511627776

	// Magic identifies an initialized arena header.
	Magic uint64 = 0xC06DFEEDDEADBEEF

	// HeaderSize is the reserved control slot at offset 0.
	HeaderSize uint64 = 64

	offMagic       = 0
	offVectorCount = 8
	offHeadOffset  = 16
)

var (
	// ErrReservationFailed is returned when the OS denies the address-space
	// reservation. Fatal: the process cannot proceed.
	ErrReservationFailed = errors.New("ghost: address-space reservation failed")
	// ErrNotActive is returned when the manager has not completed Initialize.
	ErrNotActive = errors.New("ghost: manager is not active")
	// ErrInvalidOffset is returned for offsets outside the arena.
	ErrInvalidOffset = errors.New("ghost: offset outside arena bounds")
	// ErrSelfTest is returned when the bootstrap self-check does not observe
	// its write surviving. Fatal: the healing pipeline is broken.
	ErrSelfTest = errors.New("ghost: bootstrap self-test failed")
)

// State describes the manager lifecycle. ShutDown is terminal.
type State int32

const (
	StateUninitialized State = iota
	StateReserved
	StateActive
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReserved:
		return "reserved"
	case StateActive:
		return "active"
	case StateShutDown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Header is a snapshot of the arena control record at offset 0.
type Header struct {
	Magic       uint64
	VectorCount uint64
	HeadOffset  uint64
}

// Manager owns one reserved virtual range and heals faults inside it.
type Manager struct {
	size     uint64
	pageSize uint64
	logger   *slog.Logger

	mu    sync.Mutex // guards state transitions
	state atomic.Int32
	buf   []byte
	base  uintptr

	faults   atomic.Uint64
	resident atomic.Uint64

	residentMu  sync.Mutex
	residentSet *roaring64.Bitmap
}

// Option configures a Manager.
type Option func(*Manager)

// WithSize overrides the arena size. The size is rounded up to a whole
// number of pages.
func WithSize(size uint64) Option {
	return func(m *Manager) {
		m.size = size
	}
}

// WithLogger sets the structured logger. Nil disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates an uninitialized Manager. Call Initialize before use.
func New(opts ...Option) *Manager {
	m := &Manager{
		size:        DefaultArenaSize,
		pageSize:    uint64(unix.Getpagesize()),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		residentSet: roaring64.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.size = (m.size + m.pageSize - 1) &^ (m.pageSize - 1)
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Size returns the reserved arena size in bytes.
func (m *Manager) Size() uint64 { return m.size }

// PageSize returns the host page size.
func (m *Manager) PageSize() uint64 { return m.pageSize }

// Initialize reserves the address range, arms the fault guard, bootstraps
// the arena header, and runs the self-test. The manager becomes Active only
// if every step succeeds.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.State() {
	case StateActive:
		return nil
	case StateShutDown:
		return ErrNotActive
	}

	if m.size > math.MaxInt64 || int64(m.size) > int64(math.MaxInt) {
		return fmt.Errorf("%w: size %d does not fit the host address space", ErrReservationFailed, m.size)
	}

	if m.buf == nil {
		buf, err := unix.Mmap(-1, 0, int(m.size), unix.PROT_NONE, mapFlags)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrReservationFailed, err)
		}
		m.buf = buf
		m.base = uintptr(unsafe.Pointer(&buf[0]))
		m.state.Store(int32(StateReserved))
		m.logger.Info("reserved ghost arena",
			"size", m.size,
			"pages", m.size/m.pageSize,
		)
	}

	// The very first header read below deliberately forces a fault through
	// the whole healing pipeline before any real workload begins.
	m.bootstrapHeader()

	if err := m.RunSelfTest(); err != nil {
		return err
	}

	m.state.Store(int32(StateActive))
	m.logger.Info("ghost arena active", "size", m.size)
	return nil
}

// bootstrapHeader validates or initializes the control record at offset 0.
func (m *Manager) bootstrapHeader() {
	if m.Load64(offMagic) == Magic {
		m.logger.Info("existing arena header found")
		return
	}
	m.Store64(offMagic, Magic)
	m.Store64(offVectorCount, 0)
	m.Store64(offHeadOffset, HeaderSize)
	m.logger.Info("arena header initialized", "head_offset", HeaderSize)
}

// RunSelfTest writes a sentinel deep inside the reserved range and verifies
// the write survives, proving that reservation, fault interception, and page
// commit all work end to end. A failure is fatal to startup.
func (m *Manager) RunSelfTest() error {
	off := m.size / 2
	const sentinel = uint64(9999)

	m.Store64(off, sentinel)
	if m.Load64(off) != sentinel {
		return ErrSelfTest
	}
	m.logger.Debug("self-test passed", "offset", off)
	return nil
}

// Shutdown releases the entire reservation. Idempotent; the manager is
// unusable afterwards.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateShutDown {
		return nil
	}
	m.state.Store(int32(StateShutDown))

	if m.buf != nil {
		buf := m.buf
		m.buf = nil
		m.base = 0
		if err := unix.Munmap(buf); err != nil {
			return fmt.Errorf("ghost: munmap: %w", err)
		}
	}
	m.logger.Info("ghost arena released")
	return nil
}

// Pointer translates an arena offset to a raw address. Fails if the manager
// is not Active or the offset is out of bounds. The pointed-to memory may
// still be uncommitted; dereferencing it outside a guarded accessor is the
// caller's own risk.
func (m *Manager) Pointer(off uint64) (unsafe.Pointer, error) {
	if m.State() != StateActive {
		return nil, ErrNotActive
	}
	if off >= m.size {
		return nil, fmt.Errorf("%w: %d >= %d", ErrInvalidOffset, off, m.size)
	}
	return unsafe.Pointer(m.base + uintptr(off)), nil
}

// FaultCount returns the number of faults healed so far. Advisory telemetry.
func (m *Manager) FaultCount() uint64 { return m.faults.Load() }

// ResidentPages returns the number of pages committed so far. The count
// never decreases while the manager lives.
func (m *Manager) ResidentPages() uint64 { return m.resident.Load() }

// ResidentBytes returns the committed footprint in bytes.
func (m *Manager) ResidentBytes() uint64 { return m.resident.Load() * m.pageSize }

// Header returns a snapshot of the control record. The vector count is read
// with acquire ordering so records published by a writer are visible.
func (m *Manager) Header() Header {
	return Header{
		Magic:       m.Load64(offMagic),
		VectorCount: m.AtomicLoad64(offVectorCount),
		HeadOffset:  m.AtomicLoad64(offHeadOffset),
	}
}

// ResetHeader rewinds the append cursor and record count, logically
// discarding all stored records.
func (m *Manager) ResetHeader() {
	m.AtomicStore64(offHeadOffset, HeaderSize)
	m.AtomicStore64(offVectorCount, 0)
}

// VectorCount returns the published record count with acquire ordering.
func (m *Manager) VectorCount() uint64 {
	return m.AtomicLoad64(offVectorCount)
}

// PublishRecord appends data at the current head offset, advances the
// cursor, and publishes the new record count with release ordering so any
// poller of the header sees the record bytes before the count. limit is the
// exclusive end of the log region; ok is false if the record does not fit.
//
// Single writer only: the cursor is not CAS-advanced.
func (m *Manager) PublishRecord(data []byte, limit uint64) (off uint64, ok bool) {
	head := m.Load64(offHeadOffset)
	size := uint64(len(data))
	if head+size > limit {
		return 0, false
	}

	m.CopyIn(head, data)
	m.AtomicStore64(offHeadOffset, head+size)
	m.AtomicAdd64(offVectorCount, 1)
	return head, true
}

// --- guarded accessors ---
//
// Load64/Store64/ZeroRange satisfy slab.Memory. They do not check lifecycle
// state: the allocator wired on top is only reachable while the manager is
// active, and a use-after-shutdown access faults outside any mapping, which
// the guard deliberately lets crash.

// Load64 reads the little-endian word at off, committing its page on demand.
func (m *Manager) Load64(off uint64) uint64 {
	var v uint64
	m.guard(func() {
		v = binary.LittleEndian.Uint64(m.buf[off : off+8])
	})
	return v
}

// Store64 writes the little-endian word at off, committing its page on demand.
func (m *Manager) Store64(off uint64, v uint64) {
	m.guard(func() {
		binary.LittleEndian.PutUint64(m.buf[off:off+8], v)
	})
}

// ZeroRange scrubs [off, off+n). Every touched page becomes resident.
func (m *Manager) ZeroRange(off, n uint64) {
	m.guard(func() {
		clear(m.buf[off : off+n])
	})
}

// CopyIn copies data into the arena at off.
func (m *Manager) CopyIn(off uint64, data []byte) {
	m.guard(func() {
		copy(m.buf[off:], data)
	})
}

// CopyOut copies len(dst) bytes out of the arena at off.
func (m *Manager) CopyOut(off uint64, dst []byte) {
	m.guard(func() {
		copy(dst, m.buf[off:])
	})
}

// AtomicLoad64 reads the word at off with acquire ordering. off must be
// 8-byte aligned.
func (m *Manager) AtomicLoad64(off uint64) uint64 {
	var v uint64
	m.guard(func() {
		v = (*atomic.Uint64)(unsafe.Pointer(m.base + uintptr(off))).Load()
	})
	return v
}

// AtomicStore64 writes the word at off with release ordering. off must be
// 8-byte aligned.
func (m *Manager) AtomicStore64(off uint64, v uint64) {
	m.guard(func() {
		(*atomic.Uint64)(unsafe.Pointer(m.base + uintptr(off))).Store(v)
	})
}

// AtomicAdd64 adds delta to the word at off with release ordering and
// returns the new value. off must be 8-byte aligned.
func (m *Manager) AtomicAdd64(off uint64, delta uint64) uint64 {
	var v uint64
	m.guard(func() {
		v = (*atomic.Uint64)(unsafe.Pointer(m.base + uintptr(off))).Add(delta)
	})
	return v
}

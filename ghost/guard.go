//go:build unix

package ghost

import (
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// faultAddr matches the runtime error raised for a memory fault when
// panic-on-fault is armed; Addr reports the faulting address.
type faultAddr interface {
	error
	Addr() uintptr
}

// guard executes fn with fault healing armed. fn must be an idempotent unit
// of access (a single load, store, or copy): after each healed page commit
// it is re-executed from the start.
//
// This is the trap boundary. Its only allowed actions are the bounds check,
// a single-page commit, and counter bookkeeping — it never allocates from
// the arena and never takes the allocator's lock, so it is safe to run while
// the faulting goroutine holds that lock.
func (m *Manager) guard(fn func()) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)

	for !m.try(fn) {
	}
}

func (m *Manager) try(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if !m.heal(r) {
				// Genuine fault outside our jurisdiction. Swallowing it would
				// hide real memory-safety bugs elsewhere in the process.
				panic(r)
			}
		}
	}()
	fn()
	return true
}

// heal commits the single page containing the faulting address, provided the
// address lies inside the reserved range. It reports whether the fault was
// handled.
func (m *Manager) heal(r any) bool {
	fe, isFault := r.(faultAddr)
	if !isFault {
		return false
	}

	base := m.base
	if base == 0 {
		return false
	}
	addr := uint64(fe.Addr())
	if addr < uint64(base) || addr >= uint64(base)+m.size {
		return false
	}

	page := (addr - uint64(base)) &^ (m.pageSize - 1)
	if err := unix.Mprotect(m.buf[page:page+m.pageSize], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return false
	}

	m.faults.Add(1)
	m.residentMu.Lock()
	if m.residentSet.CheckedAdd(page / m.pageSize) {
		m.resident.Add(1)
	}
	m.residentMu.Unlock()
	return true
}

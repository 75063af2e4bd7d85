package slab

import "encoding/binary"

// ByteMemory adapts a plain byte slice to the Memory interface. It is the
// backing used in tests and for arenas that live on the Go heap; production
// arenas use the fault-healing implementation in package ghost.
type ByteMemory struct {
	buf []byte
}

// NewByteMemory wraps buf. Offsets are indices into buf.
func NewByteMemory(buf []byte) *ByteMemory {
	return &ByteMemory{buf: buf}
}

// Load64 implements Memory.
func (m *ByteMemory) Load64(off uint64) uint64 {
	return binary.LittleEndian.Uint64(m.buf[off:])
}

// Store64 implements Memory.
func (m *ByteMemory) Store64(off uint64, v uint64) {
	binary.LittleEndian.PutUint64(m.buf[off:], v)
}

// ZeroRange implements Memory.
func (m *ByteMemory) ZeroRange(off, n uint64) {
	clear(m.buf[off : off+n])
}

// Bytes exposes the underlying slice.
func (m *ByteMemory) Bytes() []byte {
	return m.buf
}

package flash

import (
	"fmt"
	"sync"
)

// Mem is an in-memory NOR flash used by tests and the host simulator.
type Mem struct {
	mu       sync.Mutex
	data     []byte
	pageSize uint32

	programs  int
	erases    int
	failAfter int // programs left before an injected failure, -1 for never
}

// NewMem returns an erased device of size bytes.
func NewMem(size, pageSize uint32) *Mem {
	m := &Mem{
		data:      make([]byte, size),
		pageSize:  pageSize,
		failAfter: -1,
	}
	for i := range m.data {
		m.data[i] = Erased
	}
	return m
}

func (m *Mem) SizeBytes() uint32 { return uint32(len(m.data)) }
func (m *Mem) PageBytes() uint32 { return m.pageSize }

func (m *Mem) ReadAt(p []byte, off uint32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkRead(m.SizeBytes(), p, off); err != nil {
		return 0, err
	}
	return copy(p, m.data[off:]), nil
}

func (m *Mem) Program(p []byte, off uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkProgram(m.SizeBytes(), p, off); err != nil {
		return err
	}
	if !IsMonotonic(m.data[off:off+uint32(len(p))], p) {
		return fmt.Errorf("program %d bytes at %#x: %w", len(p), off, ErrNotMonotonic)
	}
	if m.failAfter == 0 {
		m.failAfter = -1
		return fmt.Errorf("program %d bytes at %#x: %w", len(p), off, ErrProgramFailed)
	}
	if m.failAfter > 0 {
		m.failAfter--
	}
	for i, b := range p {
		m.data[off+uint32(i)] &= b
	}
	m.programs++
	return nil
}

func (m *Mem) ErasePage(page uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	off := uint64(page) * uint64(m.pageSize)
	if off+uint64(m.pageSize) > uint64(len(m.data)) {
		return fmt.Errorf("erase page %d: %w", page, ErrOutOfRange)
	}
	for i := off; i < off+uint64(m.pageSize); i++ {
		m.data[i] = Erased
	}
	m.erases++
	return nil
}

// FailAfter lets n more programs succeed and fails the next one, like a
// single cell failing verify. A negative n disables the fault.
func (m *Mem) FailAfter(n int) {
	m.mu.Lock()
	m.failAfter = n
	m.mu.Unlock()
}

// Poke overwrites bytes without flash rules, for corrupting images in tests.
func (m *Mem) Poke(off uint32, p []byte) {
	m.mu.Lock()
	copy(m.data[off:], p)
	m.mu.Unlock()
}

// Bytes returns a copy of the whole device.
func (m *Mem) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Stats returns the number of successful programs and erases.
func (m *Mem) Stats() (programs, erases int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.programs, m.erases
}

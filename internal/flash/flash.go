// Package flash models raw NOR flash: erase sets whole pages to 0xFF and a
// program can only clear bits until the next erase.
package flash

import (
	"errors"
	"fmt"
)

// Erased is the value of every byte after a page erase.
const Erased = 0xFF

var (
	// ErrNotMonotonic means a program would need a 0→1 bit transition.
	ErrNotMonotonic = errors.New("flash: write requires erase")
	// ErrUnaligned means the offset or length breaks half-word alignment.
	ErrUnaligned = errors.New("flash: unaligned program")
	// ErrOutOfRange means the access falls outside the device.
	ErrOutOfRange = errors.New("flash: access out of range")
	// ErrProgramFailed is a verify failure reported by the device.
	ErrProgramFailed = errors.New("flash: program failed")
)

// Flash provides raw access to non-volatile memory.
//
// Offsets are relative to the start of the device. Program never sets bits;
// devices return ErrNotMonotonic instead.
type Flash interface {
	SizeBytes() uint32
	PageBytes() uint32
	ReadAt(p []byte, off uint32) (int, error)
	Program(p []byte, off uint32) error
	ErasePage(page uint32) error
}

// IsMonotonic reports whether desired can be programmed over existing by
// clearing bits only.
func IsMonotonic(existing, desired []byte) bool {
	if len(existing) != len(desired) {
		return false
	}
	for i := range desired {
		if desired[i]&existing[i] != desired[i] {
			return false
		}
	}
	return true
}

// IsErased reports whether every byte of p is 0xFF.
func IsErased(p []byte) bool {
	for _, b := range p {
		if b != Erased {
			return false
		}
	}
	return true
}

func checkProgram(size uint32, p []byte, off uint32) error {
	if off%2 != 0 || len(p)%2 != 0 {
		return fmt.Errorf("program %d bytes at %#x: %w", len(p), off, ErrUnaligned)
	}
	if uint64(off)+uint64(len(p)) > uint64(size) {
		return fmt.Errorf("program %d bytes at %#x: %w", len(p), off, ErrOutOfRange)
	}
	return nil
}

func checkRead(size uint32, p []byte, off uint32) error {
	if uint64(off)+uint64(len(p)) > uint64(size) {
		return fmt.Errorf("read %d bytes at %#x: %w", len(p), off, ErrOutOfRange)
	}
	return nil
}

package flash

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// File is a flash image kept in a host file so stored records survive restarts.
type File struct {
	mu       sync.Mutex
	f        *os.File
	size     uint32
	pageSize uint32
	scratch  []byte
}

// OpenFile opens or creates an image of size bytes. A new image starts erased.
func OpenFile(path string, size, pageSize uint32) (*File, error) {
	if pageSize == 0 || size == 0 || size%pageSize != 0 {
		return nil, fmt.Errorf("flash image %q: size %d not multiple of page size %d", path, size, pageSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open flash image %q: %w", path, err)
	}

	ff := &File{f: f, size: size, pageSize: pageSize, scratch: make([]byte, pageSize)}
	for i := range ff.scratch {
		ff.scratch[i] = Erased
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat flash image %q: %w", path, err)
	}
	switch {
	case st.Size() == 0:
		for page := uint32(0); page < size/pageSize; page++ {
			if err := ff.ErasePage(page); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
	case st.Size() != int64(size):
		_ = f.Close()
		return nil, fmt.Errorf("flash image %q is %d bytes, want %d", path, st.Size(), size)
	}
	return ff, nil
}

// Close releases the image file.
func (f *File) Close() error { return f.f.Close() }

func (f *File) SizeBytes() uint32 { return f.size }
func (f *File) PageBytes() uint32 { return f.pageSize }

func (f *File) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := checkRead(f.size, p, off); err != nil {
		return 0, err
	}
	return f.f.ReadAt(p, int64(off))
}

func (f *File) Program(p []byte, off uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := checkProgram(f.size, p, off); err != nil {
		return err
	}

	prev := make([]byte, len(p))
	if _, err := f.f.ReadAt(prev, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("flash read before program at %#x: %w", off, err)
	}
	if !IsMonotonic(prev, p) {
		return fmt.Errorf("program %d bytes at %#x: %w", len(p), off, ErrNotMonotonic)
	}
	if _, err := f.f.WriteAt(p, int64(off)); err != nil {
		return fmt.Errorf("program %d bytes at %#x: %v: %w", len(p), off, err, ErrProgramFailed)
	}
	return nil
}

func (f *File) ErasePage(page uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	off := uint64(page) * uint64(f.pageSize)
	if off+uint64(f.pageSize) > uint64(f.size) {
		return fmt.Errorf("erase page %d: %w", page, ErrOutOfRange)
	}
	if _, err := f.f.WriteAt(f.scratch, int64(off)); err != nil {
		return fmt.Errorf("erase page %d: %w", page, err)
	}
	return nil
}

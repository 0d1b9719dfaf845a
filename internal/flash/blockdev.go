package flash

import (
	"bytes"
	"fmt"

	"tinygo.org/x/tinyfs"
)

// BlockDevice adapts a tinyfs block device, such as TinyGo's machine.Flash,
// to Flash. Erase blocks are treated as pages.
type BlockDevice struct {
	dev tinyfs.BlockDevice
}

// NewBlockDevice wraps dev.
func NewBlockDevice(dev tinyfs.BlockDevice) *BlockDevice {
	return &BlockDevice{dev: dev}
}

func (b *BlockDevice) SizeBytes() uint32 { return uint32(b.dev.Size()) }
func (b *BlockDevice) PageBytes() uint32 { return uint32(b.dev.EraseBlockSize()) }

func (b *BlockDevice) ReadAt(p []byte, off uint32) (int, error) {
	if err := checkRead(b.SizeBytes(), p, off); err != nil {
		return 0, err
	}
	n, err := b.dev.ReadAt(p, int64(off))
	if err != nil {
		return n, fmt.Errorf("flash read at %#x: %w", off, err)
	}
	return n, nil
}

// Program widens the write to whole write blocks, keeping the bytes around p
// as they are, then reads the block back to verify.
func (b *BlockDevice) Program(p []byte, off uint32) error {
	if err := checkProgram(b.SizeBytes(), p, off); err != nil {
		return err
	}

	wbs := uint32(b.dev.WriteBlockSize())
	if wbs == 0 {
		wbs = 2
	}
	start := off / wbs * wbs
	end := (off + uint32(len(p)) + wbs - 1) / wbs * wbs
	if end > b.SizeBytes() {
		return fmt.Errorf("program %d bytes at %#x: %w", len(p), off, ErrOutOfRange)
	}

	block := make([]byte, end-start)
	if _, err := b.dev.ReadAt(block, int64(start)); err != nil {
		return fmt.Errorf("flash read before program at %#x: %w", start, err)
	}
	at := off - start
	if !IsMonotonic(block[at:at+uint32(len(p))], p) {
		return fmt.Errorf("program %d bytes at %#x: %w", len(p), off, ErrNotMonotonic)
	}
	copy(block[at:], p)

	if _, err := b.dev.WriteAt(block, int64(start)); err != nil {
		return fmt.Errorf("program %d bytes at %#x: %v: %w", len(p), off, err, ErrProgramFailed)
	}

	verify := make([]byte, len(block))
	if _, err := b.dev.ReadAt(verify, int64(start)); err != nil {
		return fmt.Errorf("flash verify at %#x: %w", start, err)
	}
	if !bytes.Equal(verify, block) {
		return fmt.Errorf("program %d bytes at %#x: verify mismatch: %w", len(p), off, ErrProgramFailed)
	}
	return nil
}

func (b *BlockDevice) ErasePage(page uint32) error {
	if err := b.dev.EraseBlocks(int64(page), 1); err != nil {
		return fmt.Errorf("erase page %d: %w", page, err)
	}
	return nil
}

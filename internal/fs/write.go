package fs

import (
	"errors"
	"fmt"
)

// Write stores data under name, replacing any previous file of that name.
//
// The head is written first, then each data chunk followed by the link that
// points at it, so every link field is programmed exactly once. A failure
// leaves the chunks already written in place until the next Format.
func (s *Store) Write(name string, data []byte) error {
	if err := s.checkName(name); err != nil {
		return err
	}
	if len(data) == 0 || len(data) > s.cfg.FileMax {
		return fmt.Errorf("%w: %d bytes (0 < size <= %d)", ErrInvalidSize, len(data), s.cfg.FileMax)
	}

	// 1) drop the previous version
	if err := s.Delete(name); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("write %q: replace: %w", name, err)
	}

	// 2) head chunk
	head, err := s.allocate()
	if err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}
	img := headChunk(name)
	if err := s.program(head, img[:]); err != nil {
		return fmt.Errorf("write %q: head: %w", name, err)
	}
	written := []uint32{head}

	// 3) data chunks, each linked from its predecessor
	prev := head
	for rest := data; len(rest) > 0; {
		n := min(len(rest), PayloadSize)

		addr, err := s.allocate()
		if err != nil {
			return s.abandon(name, written, err)
		}
		img := dataChunk(rest[:n])
		if err := s.program(addr, img[:]); err != nil {
			return s.abandon(name, written, err)
		}
		written = append(written, addr)
		if err := s.program(prev+offLink, linkBytes(addr)); err != nil {
			return s.abandon(name, written, err)
		}

		prev = addr
		rest = rest[n:]
	}

	s.log.Debug().Str("file", name).Int("bytes", len(data)).Int("chunks", len(written)).Msg("written")
	return nil
}

// WriteString is Write for text values.
func (s *Store) WriteString(name, value string) error {
	return s.Write(name, []byte(value))
}

// abandon marks a half-written file dead so it cannot be read back, then
// returns the original failure.
func (s *Store) abandon(name string, written []uint32, cause error) error {
	for _, addr := range written {
		cur := make([]byte, 2)
		if _, err := s.dev.ReadAt(cur, s.region.Offset(addr+offAlive)); err != nil {
			break
		}
		if err := s.program(addr+offAlive, []byte{deadMark, cur[1]}); err != nil {
			s.log.Warn().Err(err).Str("file", name).Uint32("addr", addr).Msg("partial write left alive")
			break
		}
	}
	return fmt.Errorf("write %q: %w", name, cause)
}

func (s *Store) checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > s.cfg.NameMax {
		return fmt.Errorf("%w: %q longer than %d", ErrInvalidName, name, s.cfg.NameMax)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0 || name[i] == 0xFF {
			return fmt.Errorf("%w: %q has a reserved byte", ErrInvalidName, name)
		}
	}
	return nil
}

// allocate returns the highest free chunk in the region.
func (s *Store) allocate() (uint32, error) {
	for i := s.region.Size() / ChunkSize; i > 0; i-- {
		addr := s.region.Start + (i-1)*ChunkSize
		c, err := s.readChunk(addr)
		if err != nil {
			return 0, err
		}
		if c.free() {
			return addr, nil
		}
		s.pause()
	}
	return 0, ErrNoSpace
}

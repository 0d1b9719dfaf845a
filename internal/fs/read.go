package fs

import "fmt"

// Read copies the content of name into buf, at most len(buf)-1 bytes, and
// terminates it with a zero byte. It returns the number of content bytes copied.
func (s *Store) Read(name string, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("%w: empty buffer", ErrInvalidSize)
	}
	limit := len(buf) - 1
	n := 0
	err := s.walkData(name, func(p []byte) bool {
		n += copy(buf[n:limit], p)
		return n < limit
	})
	buf[n] = 0
	return n, err
}

// ReadFile returns the whole content of name.
func (s *Store) ReadFile(name string) ([]byte, error) {
	var out []byte
	err := s.walkData(name, func(p []byte) bool {
		out = append(out, p...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// walkData feeds the payload of each data chunk of name to fn in chain order
// until fn returns false.
func (s *Store) walkData(name string, fn func([]byte) bool) error {
	head, err := s.Find(name)
	if err != nil {
		return err
	}
	chain, err := s.chain(head)
	if err != nil {
		return fmt.Errorf("read %q: %w", name, err)
	}
	for _, addr := range chain[1:] {
		c, err := s.readChunk(addr)
		if err != nil {
			return err
		}
		if !fn(c.payload()[:c.dataLen()]) {
			return nil
		}
	}
	return nil
}

// FileInfo describes one stored file.
type FileInfo struct {
	Name string
	Addr uint32
	Size int
}

// List returns every live file in address order.
func (s *Store) List() ([]FileInfo, error) {
	var out []FileInfo
	for addr := s.region.Start; addr+ChunkSize <= s.region.End; addr += ChunkSize {
		c, err := s.readChunk(addr)
		if err != nil {
			return nil, err
		}
		if c.kind() == KindFileHead && c.alive() {
			out = append(out, FileInfo{Name: c.name(), Addr: addr})
		}
		s.pause()
	}

	for i := range out {
		size, err := s.size(out[i].Addr)
		if err != nil {
			s.log.Warn().Err(err).Str("file", out[i].Name).Msg("unreadable chain")
			size = -1
		}
		out[i].Size = size
	}
	return out, nil
}

func (s *Store) size(head uint32) (int, error) {
	chain, err := s.chain(head)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, addr := range chain[1:] {
		c, err := s.readChunk(addr)
		if err != nil {
			return 0, err
		}
		total += c.dataLen()
	}
	return total, nil
}

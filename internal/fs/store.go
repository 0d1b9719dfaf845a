// Package fs is a flat record store on raw NOR flash. The region is an array
// of 32-byte chunks; a file is one head chunk linked to a chain of data chunks.
// Every mutation only clears bits, and nothing is erased except by Format.
package fs

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mcukern/internal/flash"
)

var (
	ErrInvalidName = errors.New("fs: invalid file name")
	ErrInvalidSize = errors.New("fs: invalid file size")
	ErrNotFound    = errors.New("fs: file not found")
	ErrNoSpace     = errors.New("fs: no free chunk")
	ErrCorrupt     = errors.New("fs: corrupt chunk chain")
	ErrMalformed   = errors.New("fs: malformed request")
)

// Config holds the static limits of the store.
type Config struct {
	NameMax int `yaml:"name_max"` // 23, one payload byte stays NUL
	FileMax int `yaml:"file_max"` // 1024
}

// DefaultConfig returns the firmware limits.
func DefaultConfig() Config {
	return Config{NameMax: PayloadSize - 1, FileMax: 1024}
}

// Normalize replaces out-of-range values with defaults.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.NameMax <= 0 || c.NameMax > PayloadSize-1 {
		c.NameMax = def.NameMax
	}
	if c.FileMax <= 0 {
		c.FileMax = def.FileMax
	}
	return c
}

// Store is the record store over one flash region. It does no locking;
// callers serialize access.
type Store struct {
	dev    flash.Flash
	region flash.Region
	cfg    Config
	yield  func() error
	log    zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithYield installs the cooperative yield called between chunks of long scans.
func WithYield(fn func() error) Option {
	return func(s *Store) { s.yield = fn }
}

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates a Store over region of dev.
func New(dev flash.Flash, region flash.Region, cfg Config, opts ...Option) *Store {
	s := &Store{
		dev:    dev,
		region: region,
		cfg:    cfg.Normalize(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Region returns the flash region the store manages.
func (s *Store) Region() flash.Region { return s.region }

// Find returns the address of the live head chunk named name.
func (s *Store) Find(name string) (uint32, error) {
	if name == "" {
		return 0, ErrInvalidName
	}
	for addr := s.region.Start; addr+ChunkSize <= s.region.End; addr += ChunkSize {
		c, err := s.readChunk(addr)
		if err != nil {
			return 0, err
		}
		if c.kind() == KindFileHead && c.alive() && c.name() == name {
			return addr, nil
		}
		s.pause()
	}
	return 0, ErrNotFound
}

// Delete marks every chunk of name dead. The chain is validated and every
// transition checked before the first program.
func (s *Store) Delete(name string) error {
	head, err := s.Find(name)
	if err != nil {
		return err
	}
	chain, err := s.chain(head)
	if err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}

	// alive shares a half-word with the reserved byte after it
	marks := make([][]byte, len(chain))
	for i, addr := range chain {
		cur := make([]byte, 2)
		if _, err := s.dev.ReadAt(cur, s.region.Offset(addr+offAlive)); err != nil {
			return fmt.Errorf("delete %q: %w", name, err)
		}
		want := []byte{deadMark, cur[1]}
		if !flash.IsMonotonic(cur, want) {
			return fmt.Errorf("delete %q at %#x: %w", name, addr, flash.ErrNotMonotonic)
		}
		marks[i] = want
	}

	// data first, head last: an interrupted delete leaves the file findable
	for i := len(chain) - 1; i >= 0; i-- {
		if err := s.program(chain[i]+offAlive, marks[i]); err != nil {
			return fmt.Errorf("delete %q: %w", name, err)
		}
	}
	s.log.Debug().Str("file", name).Int("chunks", len(chain)).Msg("deleted")
	return nil
}

// Format erases every page of the region.
func (s *Store) Format() error {
	first := s.region.FirstPage()
	for page := first; page < first+s.region.Pages(); page++ {
		if err := s.dev.ErasePage(page); err != nil {
			return fmt.Errorf("format: %w", err)
		}
		s.pause()
	}
	s.log.Info().Uint32("pages", s.region.Pages()).Msg("flash region formatted")
	return nil
}

// chain returns head followed by its data chunks, validating each link.
func (s *Store) chain(head uint32) ([]uint32, error) {
	out := []uint32{head}
	c, err := s.readChunk(head)
	if err != nil {
		return nil, err
	}
	limit := int(s.region.Size() / ChunkSize)
	for next := c.link(); next != EndOfChain; next = c.link() {
		if !s.validAddr(next) {
			return nil, fmt.Errorf("link %#x out of region: %w", next, ErrCorrupt)
		}
		if len(out) >= limit {
			return nil, fmt.Errorf("chain from %#x loops: %w", head, ErrCorrupt)
		}
		if c, err = s.readChunk(next); err != nil {
			return nil, err
		}
		if c.kind() != KindFileData {
			return nil, fmt.Errorf("chunk %#x is %s, want data: %w", next, c.kind(), ErrCorrupt)
		}
		out = append(out, next)
	}
	return out, nil
}

func (s *Store) validAddr(addr uint32) bool {
	return s.region.Contains(addr, ChunkSize) && (addr-s.region.Start)%ChunkSize == 0
}

func (s *Store) readChunk(addr uint32) (chunk, error) {
	var c chunk
	if _, err := s.dev.ReadAt(c[:], s.region.Offset(addr)); err != nil {
		return c, fmt.Errorf("read chunk %#x: %w", addr, err)
	}
	return c, nil
}

// program writes img at addr, touching only the half-words that change.
// The whole image is checked for 0→1 transitions first.
func (s *Store) program(addr uint32, img []byte) error {
	off := s.region.Offset(addr)
	cur := make([]byte, len(img))
	if _, err := s.dev.ReadAt(cur, off); err != nil {
		return fmt.Errorf("read %#x: %w", addr, err)
	}
	if !flash.IsMonotonic(cur, img) {
		return fmt.Errorf("program %#x: %w", addr, flash.ErrNotMonotonic)
	}
	for i := 0; i+1 < len(img); i += 2 {
		if cur[i] == img[i] && cur[i+1] == img[i+1] {
			continue
		}
		if err := s.dev.Program(img[i:i+2], off+uint32(i)); err != nil {
			return fmt.Errorf("program %#x: %w", addr+uint32(i), err)
		}
	}
	return nil
}

func (s *Store) pause() {
	if s.yield == nil {
		return
	}
	if err := s.yield(); err != nil {
		s.log.Debug().Err(err).Msg("yield refused")
	}
}

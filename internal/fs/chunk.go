package fs

import (
	"encoding/binary"

	"mcukern/internal/flash"
)

// On-flash chunk layout. Every field offset here is part of the image format.
const (
	ChunkSize   = 32
	PayloadSize = 24

	offType     = 0
	offLength   = 1 // reserved in the head; payload length of a partial data chunk
	offAlive    = 2
	offReserved = 3
	offLink     = 4
	offPayload  = 8

	// EndOfChain terminates a chunk chain.
	EndOfChain uint32 = 0xFFFFFFFF

	aliveMark = 0xFF
	deadMark  = 0x00
)

// Kind is the low nibble of a chunk's type byte.
type Kind uint8

const (
	KindDead     Kind = 0x0
	KindFileHead Kind = 0x1
	KindFileData Kind = 0x2
	KindFree     Kind = 0xF
)

func (k Kind) String() string {
	switch k {
	case KindDead:
		return "dead"
	case KindFileHead:
		return "head"
	case KindFileData:
		return "data"
	case KindFree:
		return "free"
	default:
		return "unknown"
	}
}

// chunk is one decoded 32-byte record.
type chunk [ChunkSize]byte

func (c *chunk) kind() Kind      { return Kind(c[offType] & 0x0F) }
func (c *chunk) alive() bool     { return c[offAlive] == aliveMark }
func (c *chunk) link() uint32    { return binary.LittleEndian.Uint32(c[offLink:]) }
func (c *chunk) payload() []byte { return c[offPayload:] }

// live reports whether the chunk is a head or data record not yet deleted.
func (c *chunk) live() bool {
	k := c.kind()
	return (k == KindFileHead || k == KindFileData) && c.alive()
}

// free reports whether the chunk can be allocated: free type nibble and every
// other byte still erased. Torn headers are never reused before a format.
func (c *chunk) free() bool {
	return c.kind() == KindFree && flash.IsErased(c[1:])
}

// dataLen is the number of payload bytes a data chunk carries.
func (c *chunk) dataLen() int {
	n := int(c[offLength])
	if n == flash.Erased || n > PayloadSize {
		return PayloadSize
	}
	return n
}

// name returns the file name stored in a head chunk.
func (c *chunk) name() string {
	p := c.payload()
	for i, b := range p {
		if b == 0 || b == flash.Erased {
			return string(p[:i])
		}
	}
	return string(p)
}

func blankChunk() chunk {
	var c chunk
	for i := range c {
		c[i] = flash.Erased
	}
	return c
}

// headChunk builds the image of a file head: NUL-padded name, link unset.
func headChunk(name string) chunk {
	c := blankChunk()
	c[offType] = byte(KindFileHead)
	p := c.payload()
	n := copy(p, name)
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return c
}

// dataChunk builds the image of a data chunk carrying p, link unset.
func dataChunk(p []byte) chunk {
	c := blankChunk()
	c[offType] = byte(KindFileData)
	if len(p) < PayloadSize {
		c[offLength] = byte(len(p))
	}
	copy(c.payload(), p)
	return c
}

func linkBytes(addr uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], addr)
	return b[:]
}

// Package ringbuf is a single-producer single-consumer byte queue. The
// producer side stands in for a receive interrupt, so it never blocks.
package ringbuf

import "sync/atomic"

// Ring is a fixed-size byte queue. One slot is kept empty to tell full from
// empty, so a Ring of size n holds n-1 bytes.
type Ring struct {
	buf  []byte
	head atomic.Uint32 // next write, producer owned
	tail atomic.Uint32 // next read, consumer owned

	onOverflow func(b byte)
}

// New returns a ring of size slots. onOverflow, if not nil, is called by the
// producer for every byte dropped because the ring is full.
func New(size int, onOverflow func(b byte)) *Ring {
	if size < 2 {
		size = 2
	}
	return &Ring{buf: make([]byte, size), onOverflow: onOverflow}
}

// Write queues p and returns how many bytes fit. Bytes that do not fit are
// dropped, newest first.
func (r *Ring) Write(p []byte) int {
	n := uint32(len(r.buf))
	head := r.head.Load()
	written := 0
	for _, b := range p {
		next := (head + 1) % n
		if next == r.tail.Load() {
			if r.onOverflow != nil {
				r.onOverflow(b)
			}
			continue
		}
		r.buf[head] = b
		head = next
		r.head.Store(head)
		written++
	}
	return written
}

// ReadByte pops the oldest byte. ok is false when the ring is empty.
func (r *Ring) ReadByte() (b byte, ok bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return 0, false
	}
	b = r.buf[tail]
	r.tail.Store((tail + 1) % uint32(len(r.buf)))
	return b, true
}

// Len is the number of queued bytes.
func (r *Ring) Len() int {
	n := uint32(len(r.buf))
	return int((r.head.Load() + n - r.tail.Load()) % n)
}

// Cap is the number of bytes the ring can hold.
func (r *Ring) Cap() int { return len(r.buf) - 1 }

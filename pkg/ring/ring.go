// Package ring provides the fixed-capacity byte queues shared between
// interrupt-style hooks and the cooperative main loop.
package ring

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrFull indicates no free spot is left, the byte is rejected.
	ErrFull = errors.New("ring full")
	// ErrEmpty indicates nothing is available to pop.
	ErrEmpty = errors.New("ring empty")
	// ErrCorrupted is the panic value when cursors are out of range.
	ErrCorrupted = errors.New("ring cursors corrupted")
)

// Buffer is a single-producer, single-consumer byte ring.
// The producer only moves wr and the consumer only moves rd, both
// cursors are monotonic and wrap with the mask.
type Buffer struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32
	wr   atomic.Uint32

	overflows atomic.Uint32
}

// New creates a Buffer, capacity must be a power of two.
func New(capacity int) *Buffer {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be power of two >= 2")
	}
	return &Buffer{
		buf:  make([]byte, capacity),
		mask: uint32(capacity - 1),
	}
}

// Cap returns the capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

func (b *Buffer) used(rd, wr uint32) uint32 {
	n := wr - rd
	if n > uint32(len(b.buf)) {
		panic(ErrCorrupted)
	}
	return n
}

// Len returns the number of bytes available to the consumer.
func (b *Buffer) Len() int {
	return int(b.used(b.rd.Load(), b.wr.Load()))
}

// FreeSpots returns the number of bytes the producer can push.
func (b *Buffer) FreeSpots() int {
	return len(b.buf) - b.Len()
}

// Overflows returns the number of rejected pushes since last TakeOverflows.
func (b *Buffer) Overflows() uint32 {
	return b.overflows.Load()
}

// TakeOverflows returns and clears the overflow counter.
func (b *Buffer) TakeOverflows() uint32 {
	return b.overflows.Swap(0)
}

// Push appends one byte. Producer side.
func (b *Buffer) Push(c byte) error {
	rd, wr := b.rd.Load(), b.wr.Load()
	if b.used(rd, wr) == uint32(len(b.buf)) {
		b.overflows.Add(1)
		return ErrFull
	}
	b.buf[wr&b.mask] = c
	b.wr.Store(wr + 1)
	return nil
}

// Write appends all of p, or nothing if there isn't enough room.
// Producer side.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	rd, wr := b.rd.Load(), b.wr.Load()
	if len(b.buf)-int(b.used(rd, wr)) < len(p) {
		b.overflows.Add(1)
		return 0, ErrFull
	}
	idx := wr & b.mask
	n := copy(b.buf[idx:], p)
	copy(b.buf, p[n:])
	b.wr.Store(wr + uint32(len(p)))
	return len(p), nil
}

// Pop removes the oldest byte. Consumer side.
func (b *Buffer) Pop() (byte, error) {
	rd, wr := b.rd.Load(), b.wr.Load()
	if b.used(rd, wr) == 0 {
		return 0, ErrEmpty
	}
	c := b.buf[rd&b.mask]
	b.rd.Store(rd + 1)
	return c, nil
}

// ReadInto pops up to len(dst) bytes. Consumer side.
func (b *Buffer) ReadInto(dst []byte) int {
	rd, wr := b.rd.Load(), b.wr.Load()
	n := int(b.used(rd, wr))
	if n == 0 || len(dst) == 0 {
		return 0
	}
	if len(dst) < n {
		n = len(dst)
	}
	idx := rd & b.mask
	first := copy(dst[:n], b.buf[idx:])
	if first < n {
		copy(dst[first:n], b.buf)
	}
	b.rd.Store(rd + uint32(n))
	return n
}

// Discard drops everything available. Consumer side.
func (b *Buffer) Discard() int {
	rd, wr := b.rd.Load(), b.wr.Load()
	n := b.used(rd, wr)
	b.rd.Store(wr)
	return int(n)
}

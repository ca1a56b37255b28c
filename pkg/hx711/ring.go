package hx711

import (
	"errors"
	"math/bits"
)

// ErrInvalidCapacity is returned for ring sizes outside 4, 8, 16, 32, 64 and 128.
var ErrInvalidCapacity = errors.New("hx711: ring capacity must be a power of two between 4 and 128")

// Ring is a fixed-capacity circular buffer of corrected samples.
// The oldest sample is overwritten once the ring is full.
type Ring struct {
	buf     []int32
	next    int // index of the slot written next
	written int // total writes, saturated at len(buf)
}

// NewRing creates a ring able to hold capacity samples.
func NewRing(capacity int) (*Ring, error) {
	if !ValidCapacity(capacity) {
		return nil, ErrInvalidCapacity
	}
	return &Ring{buf: make([]int32, capacity)}, nil
}

// ValidCapacity reports whether n is an accepted ring size.
func ValidCapacity(n int) bool {
	return n >= 4 && n <= 128 && n&(n-1) == 0
}

// Push stores v in the next slot.
func (r *Ring) Push(v int32) {
	r.buf[r.next] = v
	r.next = (r.next + 1) & (len(r.buf) - 1)
	if r.written < len(r.buf) {
		r.written++
	}
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Len returns the number of slots written so far, at most Cap.
func (r *Ring) Len() int {
	return r.written
}

// Primed reports whether every slot has been written at least once.
func (r *Ring) Primed() bool {
	return r.written == len(r.buf)
}

// Shift returns log2(Cap).
func (r *Ring) Shift() uint {
	return uint(bits.TrailingZeros(uint(len(r.buf))))
}

// Reset forgets all samples.
func (r *Ring) Reset() {
	clear(r.buf)
	r.next = 0
	r.written = 0
}

// Values appends the written samples to dst, oldest first.
func (r *Ring) Values(dst []int32) []int32 {
	start := 0
	if r.Primed() {
		start = r.next
	}
	for i := range r.written {
		dst = append(dst, r.buf[(start+i)&(len(r.buf)-1)])
	}
	return dst
}

// Sum adds up every slot, unwritten ones included, and subtracts the
// smallest and/or largest value once when asked to.
func (r *Ring) Sum(ignoreLow, ignoreHigh bool) int64 {
	lo, hi := r.buf[0], r.buf[0]
	var sum int64
	for _, v := range r.buf {
		sum += int64(v)
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if ignoreLow {
		sum -= int64(lo)
	}
	if ignoreHigh {
		sum -= int64(hi)
	}
	return sum
}

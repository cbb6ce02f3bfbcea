package buffer

import "iter"

// Circular is a fixed-size circular buffer that keeps the most recent BufSize
// values in the order they were appended. Samplers use it to track recent
// acceptance decisions while adapting their proposal scale.
type Circular[T any] struct {
	buffer    []T   // actual storage
	pos       int   // Current position in buffer
	BufSize   int   // BufSize is the fixed number of values maintained in memory
	Count     int   // Count is the number of values in memory. Will always be <= BufSize
	TotalSeen int64 // TotalSeen is the total number of times Add has been called
}

// NewCircular creates a new circular buffer of size totalSize (minimum 1).
func NewCircular[T any](totalSize int) *Circular[T] {
	if totalSize < 1 {
		totalSize = 1
	}

	return &Circular[T]{
		buffer:  make([]T, totalSize),
		pos:     0,
		BufSize: totalSize,
		Count:   0,
	}
}

// Internal: return the next array position
func (c *Circular[T]) nextPos() int {
	return (c.pos + 1) % c.BufSize
}

// Add appends the given value to the buffer, overwriting the oldest entry
func (c *Circular[T]) Add(v T) {
	c.TotalSeen++

	c.buffer[c.pos] = v

	c.pos = c.nextPos()

	c.Count++
	if c.Count > c.BufSize {
		c.Count = c.BufSize // max out
	}
}

// Full is true once Add has been called at least BufSize times.
func (c *Circular[T]) Full() bool {
	return c.Count >= c.BufSize
}

// Reset forgets every stored value (TotalSeen is kept).
func (c *Circular[T]) Reset() {
	var zero T
	for i := range c.buffer {
		c.buffer[i] = zero
	}
	c.pos = 0
	c.Count = 0
}

// All iterates over the stored values from oldest to newest.
func (c *Circular[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		start := 0
		if c.Count == c.BufSize {
			start = c.pos // Oldest is the one we're about to write
		}
		for i := 0; i < c.Count; i++ {
			if !yield(c.buffer[(start+i)%c.BufSize]) {
				return
			}
		}
	}
}

// Fraction returns the share of stored values for which pred is true, or 0
// for an empty buffer.
func (c *Circular[T]) Fraction(pred func(T) bool) float64 {
	if c.Count < 1 {
		return 0
	}

	hits := 0
	for v := range c.All() {
		if pred(v) {
			hits++
		}
	}
	return float64(hits) / float64(c.Count)
}

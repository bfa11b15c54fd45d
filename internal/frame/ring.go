package frame

// Ring is a fixed-depth history buffer with a head cursor. Index 0 is the
// oldest entry and Len()-1 the newest. Shift advances the cursor so the
// oldest slot is recycled as the new newest slot; for slice-valued rings
// this reuses the slot's backing storage instead of rotating pointers.
type Ring[T any] struct {
	buf  []T
	head int
}

// NewRing creates a ring with depth slots holding zero values.
func NewRing[T any](depth int) *Ring[T] {
	if depth <= 0 {
		panic("frame: ring depth must be > 0")
	}
	return &Ring[T]{buf: make([]T, depth)}
}

// NewRingOf creates a ring whose slots are pre-populated by fill, used for
// slice-valued rings whose storage comes from the PU arena.
func NewRingOf[T any](depth int, fill func(i int) T) *Ring[T] {
	r := NewRing[T](depth)
	for i := range r.buf {
		r.buf[i] = fill(i)
	}
	return r
}

// Len returns the ring depth.
func (r *Ring[T]) Len() int { return len(r.buf) }

// At returns the entry at logical index i (0 = oldest).
func (r *Ring[T]) At(i int) T {
	return r.buf[(r.head+i)%len(r.buf)]
}

// Set stores v at logical index i.
func (r *Ring[T]) Set(i int, v T) {
	r.buf[(r.head+i)%len(r.buf)] = v
}

// Shift advances the head: what was logical index 1 becomes index 0 and
// the old index-0 slot reappears as the newest slot, contents intact until
// the caller overwrites it.
func (r *Ring[T]) Shift() {
	r.head = (r.head + 1) % len(r.buf)
}

// Reset rewinds the cursor and zeroes every value slot. Slice-valued rings
// keep their backing slices; the caller zeroes their contents.
func (r *Ring[T]) Reset() {
	r.head = 0
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
}

// Package ringbuf provides a fixed-capacity rolling window. Pushing into a
// full window overwrites the oldest element, so the window always holds the
// most recent Cap() values in insertion order.
//
// A Window is not safe for concurrent use; the scan loop owns it.
package ringbuf

// Window is a circular buffer of the last n values pushed.
type Window[T any] struct {
	buf   []T
	head  int // next write position
	count int

	// total number of elements pushed out by overwrite, for metrics
	evicted uint64
}

// New creates a window holding at most capacity values. Minimum capacity is 1.
func New[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest value when the window is full.
// It reports whether a value was evicted.
func (w *Window[T]) Push(v T) bool {
	evicted := w.count == len(w.buf)
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	if evicted {
		w.evicted++
	} else {
		w.count++
	}
	return evicted
}

// At returns the i-th oldest value. It panics when i is out of range.
func (w *Window[T]) At(i int) T {
	if i < 0 || i >= w.count {
		panic("ringbuf: index out of range")
	}
	return w.buf[w.index(i)]
}

// Oldest returns the value that the next Push would evict, if the window
// is full.
func (w *Window[T]) Oldest() (T, bool) {
	var zero T
	if w.count == 0 {
		return zero, false
	}
	return w.buf[w.index(0)], true
}

// Last returns the most recently pushed value.
func (w *Window[T]) Last() (T, bool) {
	var zero T
	if w.count == 0 {
		return zero, false
	}
	return w.buf[w.index(w.count-1)], true
}

// Slice copies the window contents, oldest first, into a new slice.
func (w *Window[T]) Slice() []T {
	out := make([]T, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[w.index(i)]
	}
	return out
}

// Reset empties the window without releasing its storage.
func (w *Window[T]) Reset() {
	var zero T
	for i := range w.buf {
		w.buf[i] = zero
	}
	w.head = 0
	w.count = 0
}

// Len returns the number of values held.
func (w *Window[T]) Len() int { return w.count }

// Cap returns the window capacity.
func (w *Window[T]) Cap() int { return len(w.buf) }

// Full reports whether the next Push will evict.
func (w *Window[T]) Full() bool { return w.count == len(w.buf) }

// Evicted returns the total number of values overwritten.
func (w *Window[T]) Evicted() uint64 { return w.evicted }

func (w *Window[T]) index(i int) int {
	start := w.head - w.count
	if start < 0 {
		start += len(w.buf)
	}
	return (start + i) % len(w.buf)
}

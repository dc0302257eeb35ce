package container

// NewRing creates a FIFO queue with room for capacity items. A full ring
// doubles its storage once before Push starts to fail.
func NewRing[T any](capacity int) *Ring[T] {
	capacity = max(1, capacity)
	return &Ring[T]{
		items: make([]T, capacity),
		limit: 2 * capacity,
	}
}

// Ring is a circular buffer.
type Ring[T any] struct {
	items []T
	head  int
	size  int
	limit int
}

func (r *Ring[T]) Len() int {
	return r.size
}

func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// IsFull reports whether the next Push fails.
func (r *Ring[T]) IsFull() bool {
	return r.size >= r.limit
}

func (r *Ring[T]) grow() bool {
	if len(r.items) >= r.limit {
		return false
	}
	items := make([]T, r.limit)
	for i := 0; i < r.size; i++ {
		items[i] = r.items[(r.head+i)%len(r.items)]
	}
	r.items = items
	r.head = 0
	return true
}

// Push appends v to the tail.
func (r *Ring[T]) Push(v T) error {
	if r.size == len(r.items) && !r.grow() {
		return ErrFull
	}
	r.items[(r.head+r.size)%len(r.items)] = v
	r.size++
	return nil
}

// Peek returns a pointer to the head item without removing it.
func (r *Ring[T]) Peek() (*T, bool) {
	if r.size == 0 {
		return nil, false
	}
	return &r.items[r.head], true
}

// Pop removes and returns the head item.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	v := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.size--
	return v, true
}

// At returns the i-th item counted from the head.
func (r *Ring[T]) At(i int) (*T, bool) {
	if i < 0 || i >= r.size {
		return nil, false
	}
	return &r.items[(r.head+i)%len(r.items)], true
}

func (r *Ring[T]) Clear() {
	clear(r.items)
	r.head = 0
	r.size = 0
}

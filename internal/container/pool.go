package container

// Handle references an item of a Pool. A handle stays invalid once its item
// was freed, even after the slot is reused.
type Handle uint64

// NilHandle never references an item.
const NilHandle Handle = 0

func makeHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index))
}

func (h Handle) index() uint32 {
	return uint32(h)
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

type poolSlot[T any] struct {
	generation uint32
	used       bool
	next       int32
	item       T
}

// NewPool creates a handle allocator with capacity slots.
func NewPool[T any](capacity int) *Pool[T] {
	p := &Pool[T]{
		slots: make([]poolSlot[T], capacity),
	}
	p.Reset()
	return p
}

// Pool is a handle allocator over a fixed array of items with a free list.
type Pool[T any] struct {
	slots []poolSlot[T]
	free  int32
	used  int
}

// Reset frees every item and invalidates all outstanding handles.
func (p *Pool[T]) Reset() {
	for i := range p.slots {
		s := &p.slots[i]
		if s.used {
			s.generation++
		}
		s.used = false
		s.next = int32(i + 1)
		var zero T
		s.item = zero
	}
	if len(p.slots) > 0 {
		p.slots[len(p.slots)-1].next = -1
		p.free = 0
	} else {
		p.free = -1
	}
	p.used = 0
}

func (p *Pool[T]) Len() int {
	return p.used
}

func (p *Pool[T]) Cap() int {
	return len(p.slots)
}

func (p *Pool[T]) IsFull() bool {
	return p.free < 0
}

// Alloc claims a zeroed item.
func (p *Pool[T]) Alloc() (Handle, *T, error) {
	if p.free < 0 {
		return NilHandle, nil, ErrFull
	}

	i := p.free
	s := &p.slots[i]
	p.free = s.next

	s.used = true
	s.next = -1
	// generation 0 is reserved so that NilHandle never matches
	if s.generation == 0 {
		s.generation = 1
	}
	p.used++
	return makeHandle(uint32(i), s.generation), &s.item, nil
}

func (p *Pool[T]) slot(h Handle) *poolSlot[T] {
	i := h.index()
	if int(i) >= len(p.slots) {
		return nil
	}
	s := &p.slots[i]
	if !s.used || s.generation != h.generation() {
		return nil
	}
	return s
}

// Get returns the item of h or false when h is stale.
func (p *Pool[T]) Get(h Handle) (*T, bool) {
	s := p.slot(h)
	if s == nil {
		return nil, false
	}
	return &s.item, true
}

func (p *Pool[T]) Valid(h Handle) bool {
	return p.slot(h) != nil
}

// Free releases the item of h. Freeing a stale handle is a no-op that returns false.
func (p *Pool[T]) Free(h Handle) bool {
	s := p.slot(h)
	if s == nil {
		return false
	}
	s.used = false
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	var zero T
	s.item = zero
	s.next = p.free
	p.free = int32(h.index())
	p.used--
	return true
}

// Range calls f for every allocated item until f returns false.
// f may free the current handle.
func (p *Pool[T]) Range(f func(h Handle, item *T) bool) {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.used {
			continue
		}
		if !f(makeHandle(uint32(i), s.generation), &s.item) {
			return
		}
	}
}

package container

// NewTable creates a hashtable that holds at most capacity items.
func NewTable[K comparable, V any](capacity int) *Table[K, V] {
	return &Table[K, V]{
		items:    make(map[K]V, capacity),
		capacity: capacity,
	}
}

// Table is a fixed capacity hashtable.
type Table[K comparable, V any] struct {
	items    map[K]V
	capacity int
}

// Insert adds or replaces the value of key.
// Adding a new key to a full table fails with ErrFull.
func (t *Table[K, V]) Insert(key K, value V) error {
	if _, ok := t.items[key]; !ok && len(t.items) >= t.capacity {
		return ErrFull
	}
	t.items[key] = value
	return nil
}

func (t *Table[K, V]) Find(key K) (V, bool) {
	v, ok := t.items[key]
	return v, ok
}

func (t *Table[K, V]) Contains(key K) bool {
	_, ok := t.items[key]
	return ok
}

// Remove deletes key and reports whether it was present.
func (t *Table[K, V]) Remove(key K) bool {
	_, ok := t.items[key]
	delete(t.items, key)
	return ok
}

func (t *Table[K, V]) Len() int {
	return len(t.items)
}

func (t *Table[K, V]) Cap() int {
	return t.capacity
}

func (t *Table[K, V]) IsFull() bool {
	return len(t.items) >= t.capacity
}

// Range calls f for every item until f returns false.
// f may remove the current key.
func (t *Table[K, V]) Range(f func(key K, value V) bool) {
	for k, v := range t.items {
		if !f(k, v) {
			return
		}
	}
}

func (t *Table[K, V]) Clear() {
	clear(t.items)
}

package container

const emptySequence = 0xFFFFFFFF

// SequenceLessThan compares 16 bit sequence numbers with wrap around.
func SequenceLessThan(a, b uint16) bool {
	return SequenceGreaterThan(b, a)
}

// SequenceGreaterThan compares 16 bit sequence numbers with wrap around.
func SequenceGreaterThan(a, b uint16) bool {
	return (a > b && a-b <= 1<<15) || (a < b && b-a > 1<<15)
}

// NewSequenceBuffer creates a buffer that holds the entries of the last
// capacity sequence numbers.
func NewSequenceBuffer[T any](capacity int) *SequenceBuffer[T] {
	b := &SequenceBuffer[T]{
		sequences: make([]uint32, capacity),
		entries:   make([]T, capacity),
	}
	b.Reset()
	return b
}

// SequenceBuffer maps 16 bit sequence numbers to entries, indexed by
// sequence modulo capacity. Inserting a sequence number that is more than
// one capacity behind the newest one is rejected as stale.
type SequenceBuffer[T any] struct {
	// one past the newest inserted sequence
	sequence  uint16
	sequences []uint32
	entries   []T
}

func (b *SequenceBuffer[T]) Reset() {
	b.sequence = 0
	for i := range b.sequences {
		b.sequences[i] = emptySequence
	}
	clear(b.entries)
}

func (b *SequenceBuffer[T]) Cap() int {
	return len(b.entries)
}

// Sequence is one past the newest inserted sequence number.
func (b *SequenceBuffer[T]) Sequence() uint16 {
	return b.sequence
}

func (b *SequenceBuffer[T]) index(sequence uint16) int {
	return int(sequence) % len(b.entries)
}

// IsStale reports whether sequence fell out of the window.
func (b *SequenceBuffer[T]) IsStale(sequence uint16) bool {
	return SequenceLessThan(sequence, b.sequence-uint16(len(b.entries)))
}

func (b *SequenceBuffer[T]) removeRange(start, end uint16) {
	if int(end-start) >= len(b.entries) {
		for i := range b.sequences {
			b.sequences[i] = emptySequence
		}
		clear(b.entries)
		return
	}
	for s := start; s != end; s++ {
		b.sequences[b.index(s)] = emptySequence
	}
}

// Insert claims the entry of sequence, zeroes and returns it.
// It returns nil for stale sequence numbers.
// The pointer is valid until the entry is overwritten or removed.
func (b *SequenceBuffer[T]) Insert(sequence uint16) *T {
	if b.IsStale(sequence) {
		return nil
	}
	if SequenceGreaterThan(sequence+1, b.sequence) {
		b.removeRange(b.sequence, sequence)
		b.sequence = sequence + 1
	}

	i := b.index(sequence)
	b.sequences[i] = uint32(sequence)
	var zero T
	b.entries[i] = zero
	return &b.entries[i]
}

// Find returns the entry of sequence or nil.
func (b *SequenceBuffer[T]) Find(sequence uint16) *T {
	i := b.index(sequence)
	if b.sequences[i] != uint32(sequence) {
		return nil
	}
	return &b.entries[i]
}

func (b *SequenceBuffer[T]) Exists(sequence uint16) bool {
	return b.sequences[b.index(sequence)] == uint32(sequence)
}

func (b *SequenceBuffer[T]) Remove(sequence uint16) {
	i := b.index(sequence)
	if b.sequences[i] == uint32(sequence) {
		b.sequences[i] = emptySequence
		var zero T
		b.entries[i] = zero
	}
}

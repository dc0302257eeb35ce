package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotEnoughData is returned when a read goes past the end of the data.
var ErrNotEnoughData = errors.New("trying to read more data than available")

// NewUnpacker constructs a new Unpacker over data.
func NewUnpacker(data []byte) *Unpacker {
	return &Unpacker{buffer: data}
}

// Unpacker reads fixed width little endian values.
// Returned byte slices alias the underlying data.
type Unpacker struct {
	buffer []byte
	offset int
}

// Reset resets the underlying byte slice to a new slice
func (u *Unpacker) Reset(data []byte) {
	u.buffer = data
	u.offset = 0
}

// Size of the underlying buffer
func (u *Unpacker) Size() int {
	return len(u.buffer)
}

// Offset is the number of consumed bytes.
func (u *Unpacker) Offset() int {
	return u.offset
}

// RemainingSize is the number of bytes that were not consumed yet.
func (u *Unpacker) RemainingSize() int {
	return len(u.buffer) - u.offset
}

// Remaining returns the not yet consumed bytes without consuming them.
func (u *Unpacker) Remaining() []byte {
	return u.buffer[u.offset:]
}

func (u *Unpacker) take(n int) ([]byte, error) {
	if n < 0 || u.RemainingSize() < n {
		return nil, fmt.Errorf("%w: requesting %d, got %d", ErrNotEnoughData, n, u.RemainingSize())
	}
	b := u.buffer[u.offset : u.offset+n]
	u.offset += n
	return b, nil
}

func (u *Unpacker) NextUint8() (uint8, error) {
	b, err := u.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (u *Unpacker) NextUint16() (uint16, error) {
	b, err := u.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (u *Unpacker) NextUint32() (uint32, error) {
	b, err := u.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (u *Unpacker) NextUint64() (uint64, error) {
	b, err := u.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (u *Unpacker) NextUint16BE() (uint16, error) {
	b, err := u.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// NextBytes returns the next size bytes.
// The result aliases the unpacked data.
func (u *Unpacker) NextBytes(size int) ([]byte, error) {
	return u.take(size)
}

// NextInto fills dst completely.
func (u *Unpacker) NextInto(dst []byte) error {
	b, err := u.take(len(dst))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

// Skip consumes n bytes.
func (u *Unpacker) Skip(n int) error {
	_, err := u.take(n)
	return err
}

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrBufferTooSmall is returned when a value does not fit into the remaining buffer.
var ErrBufferTooSmall = errors.New("buffer too small")

// NewPacker creates a Packer that writes into buf, starting at index 0.
// The Packer never grows buf.
func NewPacker(buf []byte) *Packer {
	return &Packer{
		buffer: buf,
	}
}

// Packer writes fixed width little endian values into a preallocated buffer.
// The first write that does not fit sets a sticky error and every following
// write becomes a no-op.
type Packer struct {
	buffer []byte
	offset int
	err    error
}

// Reset starts writing at the beginning of buf.
func (p *Packer) Reset(buf []byte) {
	p.buffer = buf
	p.offset = 0
	p.err = nil
}

// Bytes returns the written part of the buffer.
func (p *Packer) Bytes() []byte {
	return p.buffer[:p.offset]
}

// Size is the number of written bytes.
func (p *Packer) Size() int {
	return p.offset
}

// Remaining is the number of bytes that can still be written.
func (p *Packer) Remaining() int {
	return len(p.buffer) - p.offset
}

func (p *Packer) Err() error {
	return p.err
}

func (p *Packer) grab(n int) []byte {
	if p.err != nil {
		return nil
	}
	if n < 0 || p.Remaining() < n {
		p.err = fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, n, p.Remaining())
		return nil
	}
	b := p.buffer[p.offset : p.offset+n]
	p.offset += n
	return b
}

func (p *Packer) AddUint8(v uint8) {
	if b := p.grab(1); b != nil {
		b[0] = v
	}
}

func (p *Packer) AddUint16(v uint16) {
	if b := p.grab(2); b != nil {
		binary.LittleEndian.PutUint16(b, v)
	}
}

func (p *Packer) AddUint32(v uint32) {
	if b := p.grab(4); b != nil {
		binary.LittleEndian.PutUint32(b, v)
	}
}

func (p *Packer) AddUint64(v uint64) {
	if b := p.grab(8); b != nil {
		binary.LittleEndian.PutUint64(b, v)
	}
}

// AddUint16BE is used for address words, which travel in network byte order.
func (p *Packer) AddUint16BE(v uint16) {
	if b := p.grab(2); b != nil {
		binary.BigEndian.PutUint16(b, v)
	}
}

func (p *Packer) AddBytes(data []byte) {
	if b := p.grab(len(data)); b != nil {
		copy(b, data)
	}
}

// AddZeros writes n zero bytes.
func (p *Packer) AddZeros(n int) {
	if b := p.grab(n); b != nil {
		clear(b)
	}
}

// PadTo writes zero bytes until Size() equals size.
func (p *Packer) PadTo(size int) {
	if p.err != nil {
		return
	}
	if p.offset > size {
		p.err = fmt.Errorf("%w: already wrote %d bytes, cannot pad to %d", ErrBufferTooSmall, p.offset, size)
		return
	}
	p.AddZeros(size - p.offset)
}

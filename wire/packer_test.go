package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackerAndUnpacker(t *testing.T) {
	require := require.New(t)

	var buf [64]byte
	p := NewPacker(buf[:])
	p.AddUint8(0xAB)
	p.AddUint16(0x1234)
	p.AddUint32(0xDEADBEEF)
	p.AddUint64(0x0102030405060708)
	p.AddUint16BE(0x1234)
	p.AddBytes([]byte{1, 2, 3})
	p.AddZeros(2)
	require.NoError(p.Err())
	require.Equal(1+2+4+8+2+3+2, p.Size())

	// little endian layout
	require.Equal([]byte{0x34, 0x12}, buf[1:3])
	// big endian address word
	require.Equal([]byte{0x12, 0x34}, buf[15:17])

	u := NewUnpacker(p.Bytes())
	u8, err := u.NextUint8()
	require.NoError(err)
	require.Equal(uint8(0xAB), u8)

	u16, err := u.NextUint16()
	require.NoError(err)
	require.Equal(uint16(0x1234), u16)

	u32, err := u.NextUint32()
	require.NoError(err)
	require.Equal(uint32(0xDEADBEEF), u32)

	u64, err := u.NextUint64()
	require.NoError(err)
	require.Equal(uint64(0x0102030405060708), u64)

	be, err := u.NextUint16BE()
	require.NoError(err)
	require.Equal(uint16(0x1234), be)

	b, err := u.NextBytes(3)
	require.NoError(err)
	require.Equal([]byte{1, 2, 3}, b)

	require.NoError(u.Skip(2))
	require.Zero(u.RemainingSize())

	_, err = u.NextUint8()
	require.ErrorIs(err, ErrNotEnoughData)
}

func TestPackerOverflowIsSticky(t *testing.T) {
	require := require.New(t)

	var buf [5]byte
	p := NewPacker(buf[:])
	p.AddUint32(1)
	p.AddUint16(2)
	require.ErrorIs(p.Err(), ErrBufferTooSmall)

	// writes after the first failure are ignored
	p.AddUint8(3)
	require.Equal(4, p.Size())
	require.ErrorIs(p.Err(), ErrBufferTooSmall)
}

func TestPackerPadTo(t *testing.T) {
	require := require.New(t)

	buf := []byte{9, 9, 9, 9, 9, 9}
	p := NewPacker(buf)
	p.AddUint8(1)
	p.PadTo(6)
	require.NoError(p.Err())
	require.Equal([]byte{1, 0, 0, 0, 0, 0}, p.Bytes())

	p.PadTo(3)
	require.ErrorIs(p.Err(), ErrBufferTooSmall)
}

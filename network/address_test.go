package network

import (
	"testing"

	"github.com/jxsl13/gamenet/protocol"
	"github.com/jxsl13/gamenet/wire"
	"github.com/stretchr/testify/require"
)

func TestEndpointWireEncoding(t *testing.T) {
	tests := []struct {
		name  string
		addr  string
		typ   protocol.AddressType
		size  int
		first []byte
	}{
		{"ipv4", "127.0.0.1:5000", protocol.AddressTypeIPv4, 7, []byte{1, 127, 0, 0, 1}},
		{"ipv6", "[::1]:5000", protocol.AddressTypeIPv6, 19, []byte{2, 0, 0}},
		{"mapped", "[::ffff:10.0.0.1]:80", protocol.AddressTypeIPv4, 7, []byte{1, 10, 0, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			ep, err := ParseEndpoint(tt.addr)
			require.NoError(err)
			require.Equal(tt.typ, ep.Type())
			require.Equal(tt.size, ep.WireSize())

			var buf [32]byte
			p := wire.NewPacker(buf[:])
			require.NoError(ep.Pack(p))
			require.Equal(tt.size, p.Size())
			require.Equal(tt.first, p.Bytes()[:len(tt.first)])

			got, err := UnpackEndpoint(wire.NewUnpacker(p.Bytes()))
			require.NoError(err)
			require.Equal(ep, got)
		})
	}
}

func TestEndpointIPv6WordOrder(t *testing.T) {
	require := require.New(t)

	ep := MustParseEndpoint("[2001:db8::1]:443")
	var buf [32]byte
	p := wire.NewPacker(buf[:])
	require.NoError(ep.Pack(p))

	b := p.Bytes()
	require.Equal([]byte{0x20, 0x01, 0x0d, 0xb8}, b[1:5])
	require.Equal([]byte{0x00, 0x01}, b[15:17])
	// port is little endian like every other integer
	require.Equal([]byte{0xbb, 0x01}, b[17:19])
}

func TestUnpackEndpointInvalid(t *testing.T) {
	require := require.New(t)

	_, err := UnpackEndpoint(wire.NewUnpacker([]byte{9, 1, 2, 3}))
	require.ErrorIs(err, ErrInvalidEndpointType)

	_, err = UnpackEndpoint(wire.NewUnpacker([]byte{1, 127, 0}))
	require.ErrorIs(err, wire.ErrNotEnoughData)

	_, err = ParseEndpoint("not an endpoint")
	require.ErrorIs(err, ErrInvalidEndpoint)

	require.ErrorIs(NilEndpoint.Pack(wire.NewPacker(make([]byte, 32))), ErrInvalidEndpointType)
}

package network

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/jxsl13/gamenet/protocol"
	"github.com/jxsl13/gamenet/wire"
)

var (
	ErrInvalidEndpoint     = errors.New("invalid endpoint")
	ErrInvalidEndpointType = errors.New("invalid endpoint type")
)

// NilEndpoint is the zero value of Endpoint
var NilEndpoint Endpoint

// ParseEndpoint parses an Endpoint from its <ipv4>:port or [ipv6]:port representation.
func ParseEndpoint(addrPort string) (Endpoint, error) {
	ap, err := netip.ParseAddrPort(addrPort)
	if err != nil {
		return NilEndpoint, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	return EndpointFrom(ap), nil
}

// MustParseEndpoint is like ParseEndpoint but panics on invalid input.
func MustParseEndpoint(addrPort string) Endpoint {
	ep, err := ParseEndpoint(addrPort)
	if err != nil {
		panic(err)
	}
	return ep
}

// EndpointFrom converts ap. IPv4 mapped IPv6 addresses become plain IPv4
// addresses so that the same peer always maps to the same Endpoint.
func EndpointFrom(ap netip.AddrPort) Endpoint {
	return Endpoint{
		addr: ap.Addr().Unmap().WithZone(""),
		port: ap.Port(),
	}
}

// Endpoint represents a network address, an ip and a port.
// Endpoints are comparable and can be used as map keys.
type Endpoint struct {
	addr netip.Addr
	port uint16
}

func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.addr, e.port)
}

func (e Endpoint) Addr() netip.Addr {
	return e.addr
}

func (e Endpoint) Port() uint16 {
	return e.port
}

func (e Endpoint) IsValid() bool {
	return e.addr.IsValid()
}

func (e Endpoint) String() string {
	if !e.IsValid() {
		return "invalid endpoint"
	}
	return e.AddrPort().String()
}

// Type returns the protocol specific address type
func (e Endpoint) Type() protocol.AddressType {
	switch {
	case !e.addr.IsValid():
		return protocol.AddressTypeNone
	case e.addr.Is4():
		return protocol.AddressTypeIPv4
	default:
		return protocol.AddressTypeIPv6
	}
}

// WireSize is the number of bytes Pack writes.
func (e Endpoint) WireSize() int {
	switch e.Type() {
	case protocol.AddressTypeIPv4:
		return 1 + 4 + 2
	case protocol.AddressTypeIPv6:
		return 1 + 16 + 2
	default:
		return 0
	}
}

// Pack writes the type tag, the address bytes and the port.
// IPv6 addresses are written as eight big endian 16 bit words.
func (e Endpoint) Pack(p *wire.Packer) error {
	switch e.Type() {
	case protocol.AddressTypeIPv4:
		p.AddUint8(uint8(protocol.AddressTypeIPv4))
		a := e.addr.As4()
		p.AddBytes(a[:])
	case protocol.AddressTypeIPv6:
		p.AddUint8(uint8(protocol.AddressTypeIPv6))
		a := e.addr.As16()
		for i := 0; i < 16; i += 2 {
			p.AddUint16BE(uint16(a[i])<<8 | uint16(a[i+1]))
		}
	default:
		return ErrInvalidEndpointType
	}
	p.AddUint16(e.port)
	return p.Err()
}

// UnpackEndpoint reads an endpoint written by Endpoint.Pack.
func UnpackEndpoint(u *wire.Unpacker) (Endpoint, error) {
	t, err := u.NextUint8()
	if err != nil {
		return NilEndpoint, err
	}

	var addr netip.Addr
	switch protocol.AddressType(t) {
	case protocol.AddressTypeIPv4:
		var a [4]byte
		if err := u.NextInto(a[:]); err != nil {
			return NilEndpoint, err
		}
		addr = netip.AddrFrom4(a)
	case protocol.AddressTypeIPv6:
		var a [16]byte
		for i := 0; i < 16; i += 2 {
			w, err := u.NextUint16BE()
			if err != nil {
				return NilEndpoint, err
			}
			a[i] = byte(w >> 8)
			a[i+1] = byte(w)
		}
		addr = netip.AddrFrom16(a)
	default:
		return NilEndpoint, fmt.Errorf("%w: %d", ErrInvalidEndpointType, t)
	}

	port, err := u.NextUint16()
	if err != nil {
		return NilEndpoint, err
	}
	return Endpoint{addr: addr, port: port}, nil
}

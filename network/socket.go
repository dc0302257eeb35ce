package network

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/jxsl13/gamenet/protocol"
)

const (
	socketBufferSize = 1 << 20
	socketQueueSize  = 1024

	// big enough to detect oversized datagrams
	readBufferSize = 2048
)

type datagram struct {
	from Endpoint
	data []byte
}

// Socket is a UDP socket with a non-blocking receive.
// A single goroutine reads from the operating system socket and queues the
// datagrams, ReceiveFrom only polls that queue.
type Socket struct {
	conn  *net.UDPConn
	local Endpoint

	incoming  chan datagram
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Listen binds a UDP socket to bind. Port 0 lets the operating system pick a port.
func Listen(bind Endpoint) (*Socket, error) {
	if !bind.IsValid() {
		return nil, fmt.Errorf("failed to listen: %w", ErrInvalidEndpoint)
	}

	network := "udp6"
	if bind.Type() == protocol.AddressTypeIPv4 {
		network = "udp4"
	}

	conn, err := net.ListenUDP(network, net.UDPAddrFromAddrPort(bind.AddrPort()))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", bind, err)
	}

	err = conn.SetReadBuffer(socketBufferSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set read buffer: %w", err)
	}
	err = conn.SetWriteBuffer(socketBufferSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set write buffer: %w", err)
	}

	local, err := netip.ParseAddrPort(conn.LocalAddr().String())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to parse local address: %w", err)
	}

	s := &Socket{
		conn:     conn,
		local:    EndpointFrom(local),
		incoming: make(chan datagram, socketQueueSize),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

// ListenFrom parses bindAddr and calls Listen.
func ListenFrom(bindAddr string) (*Socket, error) {
	ep, err := ParseEndpoint(bindAddr)
	if err != nil {
		return nil, err
	}
	return Listen(ep)
}

// ListenAny binds a socket to the unspecified address of remote's address family.
func ListenAny(remote Endpoint) (*Socket, error) {
	addr := netip.IPv6Unspecified()
	if remote.Type() == protocol.AddressTypeIPv4 {
		addr = netip.IPv4Unspecified()
	}
	return Listen(EndpointFrom(netip.AddrPortFrom(addr, 0)))
}

func (s *Socket) readLoop() {
	defer s.wg.Done()

	for {
		buf := make([]byte, readBufferSize)
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		if n > protocol.NetMaxPacketSize {
			continue
		}

		select {
		case s.incoming <- datagram{from: EndpointFrom(from), data: buf[:n]}:
		case <-s.done:
			return
		default:
			// queue full, drop like the kernel would
		}
	}
}

func (s *Socket) LocalEndpoint() Endpoint {
	return s.local
}

func (s *Socket) SendTo(to Endpoint, data []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	ap := to.AddrPort()
	if s.local.Type() == protocol.AddressTypeIPv6 && to.Type() == protocol.AddressTypeIPv4 {
		ap = netip.AddrPortFrom(netip.AddrFrom16(to.addr.As16()), to.port)
	}

	_, err := s.conn.WriteToUDPAddrPort(data, ap)
	return err
}

func (s *Socket) ReceiveFrom(buf []byte) (int, Endpoint, error) {
	select {
	case dg := <-s.incoming:
		n := copy(buf, dg.data)
		return n, dg.from, nil
	case <-s.done:
		return 0, NilEndpoint, ErrClosed
	default:
		return 0, NilEndpoint, ErrNoData
	}
}

// Close closes the socket and waits for the reader goroutine to exit.
func (s *Socket) Close() error {
	err := error(nil)
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

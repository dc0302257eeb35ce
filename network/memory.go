package network

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
)

// ErrEndpointInUse is returned when two transports bind the same endpoint.
var ErrEndpointInUse = errors.New("endpoint already in use")

// NewMemoryNetwork creates an in-process datagram network.
// Datagrams are delivered instantly, in order and without loss.
// Combine it with a Simulator for anything else.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		bound:    make(map[Endpoint]*MemoryTransport),
		nextPort: 40000,
	}
}

// MemoryNetwork routes datagrams between MemoryTransports by endpoint.
type MemoryNetwork struct {
	mu       sync.Mutex
	bound    map[Endpoint]*MemoryTransport
	nextPort uint16
}

// Listen binds a transport to ep. Port 0 picks a free port.
func (n *MemoryNetwork) Listen(ep Endpoint) (*MemoryTransport, error) {
	if !ep.IsValid() {
		return nil, fmt.Errorf("failed to listen: %w", ErrInvalidEndpoint)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if ep.Port() == 0 {
		for {
			candidate := EndpointFrom(netip.AddrPortFrom(ep.Addr(), n.nextPort))
			n.nextPort++
			if n.nextPort == 0 {
				n.nextPort = 40000
			}
			if _, ok := n.bound[candidate]; !ok {
				ep = candidate
				break
			}
		}
	}

	if _, ok := n.bound[ep]; ok {
		return nil, fmt.Errorf("failed to listen on %s: %w", ep, ErrEndpointInUse)
	}

	t := &MemoryTransport{
		network: n,
		local:   ep,
	}
	n.bound[ep] = t
	return t, nil
}

// Factory returns a Factory that binds a fresh transport on the server's
// loopback address family for each client.
func (n *MemoryNetwork) Factory() Factory {
	return func(server Endpoint) (Transport, error) {
		addr := netip.IPv6Loopback()
		if server.Addr().Is4() {
			addr = netip.AddrFrom4([4]byte{127, 0, 0, 1})
		}
		return n.Listen(EndpointFrom(netip.AddrPortFrom(addr, 0)))
	}
}

func (n *MemoryNetwork) deliver(from, to Endpoint, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t, ok := n.bound[to]
	if !ok {
		// nobody listens, the datagram is lost
		return
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	t.queue = append(t.queue, datagram{from: from, data: buf})
}

func (n *MemoryNetwork) unbind(t *MemoryTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.bound[t.local] == t {
		delete(n.bound, t.local)
	}
	t.closed = true
	t.queue = nil
}

// MemoryTransport is a Transport bound to a MemoryNetwork.
type MemoryTransport struct {
	network *MemoryNetwork
	local   Endpoint

	// guarded by network.mu
	queue  []datagram
	closed bool
}

func (t *MemoryTransport) LocalEndpoint() Endpoint {
	return t.local
}

func (t *MemoryTransport) SendTo(to Endpoint, data []byte) error {
	t.network.mu.Lock()
	closed := t.closed
	t.network.mu.Unlock()
	if closed {
		return ErrClosed
	}

	t.network.deliver(t.local, to, data)
	return nil
}

func (t *MemoryTransport) ReceiveFrom(buf []byte) (int, Endpoint, error) {
	t.network.mu.Lock()
	defer t.network.mu.Unlock()

	if t.closed {
		return 0, NilEndpoint, ErrClosed
	}
	if len(t.queue) == 0 {
		return 0, NilEndpoint, ErrNoData
	}

	dg := t.queue[0]
	t.queue[0] = datagram{}
	t.queue = t.queue[1:]

	n := copy(buf, dg.data)
	return n, dg.from, nil
}

// Pending is the number of queued datagrams.
func (t *MemoryTransport) Pending() int {
	t.network.mu.Lock()
	defer t.network.mu.Unlock()
	return len(t.queue)
}

func (t *MemoryTransport) Close() error {
	t.network.unbind(t)
	return nil
}

// Listener returns a Listener that binds transports of this network.
func (n *MemoryNetwork) Listener() Listener {
	return func(bind Endpoint) (Transport, error) {
		return n.Listen(bind)
	}
}

package network

import "errors"

var (
	// ErrNoData is returned by ReceiveFrom when no datagram is pending.
	// It is an expected condition, not a failure.
	ErrNoData = errors.New("no data")

	ErrClosed = errors.New("transport closed")
)

// Transport is a non-blocking datagram transport.
type Transport interface {
	// SendTo sends a single datagram.
	SendTo(to Endpoint, data []byte) error

	// ReceiveFrom copies the next pending datagram into buf.
	// It returns ErrNoData instead of blocking when nothing is pending.
	ReceiveFrom(buf []byte) (n int, from Endpoint, err error)

	LocalEndpoint() Endpoint
	Close() error
}

// Updater is implemented by transports that keep their own time,
// like the Simulator. Client and server pass their dt along.
type Updater interface {
	Update(dt float64)
}

// Factory opens the transport a client uses to talk to server.
type Factory func(server Endpoint) (Transport, error)

// UDPFactory opens a UDP socket on a random port of the server's address family.
func UDPFactory(server Endpoint) (Transport, error) {
	return ListenAny(server)
}

// Listener opens the transport a server receives on.
type Listener func(bind Endpoint) (Transport, error)

// UDPListener binds a UDP socket to bind.
func UDPListener(bind Endpoint) (Transport, error) {
	return Listen(bind)
}

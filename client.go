package gamenet

import (
	"fmt"
	"sync/atomic"

	"github.com/jxsl13/gamenet/handshake"
	"github.com/jxsl13/gamenet/transport"
	"go.uber.org/zap"
)

// Packet is a packet received from the peer.
type Packet struct {
	Data     []byte
	Reliable bool
}

// Client attaches a transport to a handshake.Client while it is connected.
type Client struct {
	log       *zap.Logger
	proto     *handshake.Client
	cfg       transport.Config
	transport *transport.Transport

	snapshot atomic.Pointer[ClientSnapshot]
}

// ClientSnapshot is the state of a Client after its last Update.
type ClientSnapshot struct {
	State     handshake.ClientState
	Stats     handshake.ClientStats
	Transport transport.Counters

	RTT               float64
	PacketLoss        float64
	OutgoingBandwidth float64
	IncomingBandwidth float64
}

func NewClient(appID uint64, opts ...Option) (*Client, error) {
	o := newOptions(opts)

	// validates the transport config early
	if _, err := transport.New(o.transport, func([]byte) error { return nil }); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	clientOpts := append([]handshake.ClientOption{handshake.WithClientLogger(o.log)}, o.client...)
	c := &Client{
		log:   o.log,
		proto: handshake.NewClient(appID, clientOpts...),
		cfg:   o.transport,
	}
	c.updateSnapshot()
	return c, nil
}

// Snapshot returns the state after the last Update. It is safe for concurrent use.
func (c *Client) Snapshot() ClientSnapshot {
	return *c.snapshot.Load()
}

func (c *Client) updateSnapshot() {
	snap := &ClientSnapshot{
		State: c.proto.State(),
		Stats: c.proto.Stats(),
	}
	if c.transport != nil {
		a := c.transport.Ack()
		snap.Transport = c.transport.Counters()
		snap.RTT = a.RTT()
		snap.PacketLoss = a.PacketLoss()
		snap.OutgoingBandwidth = a.OutgoingBandwidth()
		snap.IncomingBandwidth = a.IncomingBandwidth()
	}
	c.snapshot.Store(snap)
}

// Protocol is the handshake layer of the client.
func (c *Client) Protocol() *handshake.Client {
	return c.proto
}

// Transport is the transport of the current connection or nil.
func (c *Client) Transport() *transport.Transport {
	return c.transport
}

func (c *Client) State() handshake.ClientState {
	return c.proto.State()
}

// Connect starts connecting with connectToken. now is the unix time in seconds.
func (c *Client) Connect(connectToken []byte, now uint64) error {
	defer c.updateSnapshot()
	c.transport = nil
	return c.proto.Connect(connectToken, now)
}

// Update drives the handshake, feeds received payloads into the transport
// and lets the transport resend and acknowledge.
func (c *Client) Update(dt float64, now uint64) {
	defer c.updateSnapshot()
	c.proto.Update(dt, now)

	if c.proto.State() != handshake.ClientStateConnected {
		if c.transport != nil {
			c.log.Debug("connection lost, dropping transport", zap.Stringer("state", c.proto.State()))
			c.transport = nil
		}
		return
	}

	if c.transport == nil {
		t, err := transport.New(c.cfg, c.proto.Send)
		if err != nil {
			c.log.Error("failed to create transport", zap.Error(err))
			return
		}
		c.transport = t
	}

	for {
		data, ok := c.proto.ReceivePayload()
		if !ok {
			break
		}
		if err := c.transport.ProcessPacket(data); err != nil {
			c.log.Debug("dropping payload", zap.Error(err))
		}
	}

	if err := c.transport.Update(dt); err != nil {
		c.log.Debug("transport update failed", zap.Error(err))
	}
}

// Send sends data to the server.
func (c *Client) Send(data []byte, reliable bool) error {
	if c.transport == nil {
		return ErrNotConnected
	}
	return c.transport.Send(data, reliable)
}

// PopPacket returns the next received packet, reliable packets first.
func (c *Client) PopPacket() (Packet, bool) {
	if c.transport == nil {
		return Packet{}, false
	}
	if data, ok := c.transport.ReceiveReliable(); ok {
		return Packet{Data: data, Reliable: true}, true
	}
	if data, ok := c.transport.ReceiveUnreliable(); ok {
		return Packet{Data: data}, true
	}
	return Packet{}, false
}

// FreePacket hands p back to the transport for reuse.
func (c *Client) FreePacket(p Packet) {
	if c.transport != nil {
		c.transport.FreePacket(p.Data)
	}
}

// Disconnect drops queued packets and notifies the server.
func (c *Client) Disconnect() error {
	defer c.updateSnapshot()
	c.transport = nil
	return c.proto.Disconnect()
}

// Close disconnects the client.
func (c *Client) Close() error {
	return c.Disconnect()
}

package handshake

import (
	"errors"
	"fmt"

	"github.com/jxsl13/gamenet/internal/container"
	"github.com/jxsl13/gamenet/network"
	"github.com/jxsl13/gamenet/packet"
	"github.com/jxsl13/gamenet/protocol"
	"github.com/jxsl13/gamenet/token"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// NewClient creates a disconnected client for the application appID.
func NewClient(appID uint64, options ...ClientOption) *Client {
	c := &Client{
		log:           zap.NewNop(),
		factory:       network.UDPFactory,
		appID:         appID,
		replay:        packet.NewReplayBuffer(),
		queueCapacity: protocol.DefaultReceiveQueueCapacity,
	}
	for _, o := range options {
		o(c)
	}
	c.queue = container.NewRing[[]byte](c.queueCapacity)
	return c
}

// ClientStats are the packet counters of a Client.
type ClientStats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsDropped  uint64
	BytesSent       uint64
	BytesReceived   uint64
}

// Client connects to one of the servers of a connect token.
type Client struct {
	log     *zap.Logger
	factory network.Factory
	appID   uint64

	state ClientState
	token *token.ClientToken

	endpointIndex int
	server        network.Endpoint
	transport     network.Transport

	// sequence keeps counting across servers, the session keys stay the same
	sequence uint64
	replay   *packet.ReplayBuffer

	challenge packet.ChallengeRequest

	clientID          uint64
	maxClients        uint32
	connectionTimeout float64

	// seconds since the last packet was sent or received
	lastSend    float64
	lastReceive float64

	queueCapacity int
	queue         *container.Ring[[]byte]

	stats ClientStats

	sendBuf [protocol.NetMaxPacketSize]byte
	recvBuf [protocol.NetMaxPacketSize]byte
}

func (c *Client) State() ClientState {
	return c.state
}

func (c *Client) Stats() ClientStats {
	return c.stats
}

// ClientID is the id the server confirmed, valid while connected.
func (c *Client) ClientID() uint64 {
	return c.clientID
}

// MaxClients is the slot count the server reported on acceptance.
func (c *Client) MaxClients() uint32 {
	return c.maxClients
}

// ServerEndpoint is the server the client currently talks to.
func (c *Client) ServerEndpoint() network.Endpoint {
	return c.server
}

// LocalEndpoint is the endpoint of the client's transport, if any.
func (c *Client) LocalEndpoint() network.Endpoint {
	if c.transport == nil {
		return network.NilEndpoint
	}
	return c.transport.LocalEndpoint()
}

func (c *Client) transition(e ClientEvent) {
	next, ok := Transition(c.state, e)
	if !ok {
		c.log.Debug("ignoring client event",
			zap.Stringer("state", c.state),
			zap.Stringer("event", e),
		)
		return
	}
	if next != c.state {
		c.log.Info("client state changed",
			zap.Stringer("from", c.state),
			zap.Stringer("to", next),
			zap.Stringer("server", c.server),
		)
	}
	c.state = next
}

// Connect starts connecting to the servers of connectToken.
// A connected client is disconnected first.
// Invalid and expired tokens move the client into the matching failure state.
func (c *Client) Connect(connectToken []byte, now uint64) error {
	if !c.state.IsIdle() {
		if err := c.Disconnect(); err != nil {
			c.log.Warn("failed to disconnect before connecting", zap.Error(err))
		}
	}

	t, err := token.ExtractClient(connectToken, c.appID, now)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			c.transition(ClientEventTokenExpired)
		} else {
			c.transition(ClientEventInvalidToken)
		}
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.token = t
	c.endpointIndex = 0
	c.sequence = 0
	c.queue.Clear()

	err = c.openTransport()
	if err != nil {
		c.token = nil
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.transition(ClientEventConnect)
	return nil
}

// openTransport targets the current endpoint of the token with a fresh transport.
func (c *Client) openTransport() error {
	c.closeTransport()

	server := c.token.Endpoints[c.endpointIndex]
	t, err := c.factory(server)
	if err != nil {
		return fmt.Errorf("failed to open transport to %s: %w", server, err)
	}

	c.transport = t
	c.server = server
	c.replay.Reset()
	c.challenge = packet.ChallengeRequest{}
	c.lastReceive = 0
	// the first packet goes out on the next update
	c.lastSend = protocol.SendRate
	return nil
}

func (c *Client) closeTransport() error {
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	c.transport = nil
	return err
}

// Update receives pending packets, advances the timers and sends whatever is due.
// now is the unix time in seconds, it is only compared to the token's expiration.
func (c *Client) Update(dt float64, now uint64) {
	if c.state.IsIdle() {
		return
	}

	if u, ok := c.transport.(network.Updater); ok {
		u.Update(dt)
	}

	c.lastSend += dt
	c.lastReceive += dt

	c.receivePackets()
	if c.state.IsIdle() {
		return
	}

	if c.state.IsHandshaking() && c.token.Expired(now) {
		c.log.Info("connect token expired", zap.Uint64("now", now))
		c.transition(ClientEventTokenExpired)
		c.reset()
		return
	}

	switch c.state {
	case ClientStateSendingConnectionRequest, ClientStateSendingChallengeResponse:
		timeout := float64(c.token.HandshakeTimeout)
		if timeout > 0 && c.lastReceive >= timeout {
			c.log.Info("handshake timed out",
				zap.Stringer("state", c.state),
				zap.Stringer("server", c.server),
			)
			c.nextServer(ClientEventHandshakeTimeout)
			return
		}
	case ClientStateConnected:
		if c.connectionTimeout > 0 && c.lastReceive >= c.connectionTimeout {
			c.log.Info("connection timed out", zap.Stringer("server", c.server))
			c.transition(ClientEventConnectionTimeout)
			c.reset()
			return
		}
	}

	if c.lastSend >= protocol.SendRate {
		c.sendStatePacket()
	}
}

// nextServer tries the next endpoint of the token or fails with e.
func (c *Client) nextServer(e ClientEvent) {
	if c.endpointIndex+1 < len(c.token.Endpoints) {
		c.endpointIndex++
		err := c.openTransport()
		if err != nil {
			c.log.Warn("failed to try next server", zap.Error(err))
			c.transition(e)
			c.reset()
			return
		}
		c.transition(ClientEventNextServer)
		return
	}
	c.transition(e)
	c.reset()
}

// reset drops all connection state but keeps the client's state.
func (c *Client) reset() {
	if err := c.closeTransport(); err != nil {
		c.log.Debug("failed to close transport", zap.Error(err))
	}
	c.token = nil
	c.server = network.NilEndpoint
	c.clientID = 0
	c.maxClients = 0
	c.connectionTimeout = 0
	c.challenge = packet.ChallengeRequest{}
	c.replay.Reset()
	c.queue.Clear()
}

func (c *Client) sendStatePacket() {
	var p packet.Packet
	switch c.state {
	case ClientStateSendingConnectionRequest:
		p = packet.ConnectToken{Data: c.token.Packet[:]}
	case ClientStateSendingChallengeResponse:
		p = packet.ChallengeResponse{Nonce: c.challenge.Nonce, Data: c.challenge.Data}
	case ClientStateConnected:
		p = packet.Keepalive{}
	default:
		return
	}
	if err := c.sendPacket(p); err != nil {
		c.log.Debug("failed to send packet", zap.Stringer("type", p.Type()), zap.Error(err))
	}
}

func (c *Client) sendPacket(p packet.Packet) error {
	n, err := packet.Write(c.sendBuf[:], p, c.sequence, &c.token.ClientToServerKey, c.appID)
	if err != nil {
		return err
	}
	if p.Type() != protocol.PacketTypeConnectToken {
		c.sequence++
	}
	c.lastSend = 0
	c.stats.PacketsSent++
	c.stats.BytesSent += uint64(n)
	return c.transport.SendTo(c.server, c.sendBuf[:n])
}

func (c *Client) receivePackets() {
	for c.transport != nil {
		n, from, err := c.transport.ReceiveFrom(c.recvBuf[:])
		if err != nil {
			if !errors.Is(err, network.ErrNoData) {
				c.log.Debug("failed to receive", zap.Error(err))
			}
			return
		}
		c.stats.PacketsReceived++
		c.stats.BytesReceived += uint64(n)
		if from != c.server {
			c.stats.PacketsDropped++
			c.log.Debug("dropping packet from unknown endpoint", zap.Stringer("from", from))
			continue
		}

		p, _, err := packet.Read(c.recvBuf[:n], packet.ClientTypes, &c.token.ServerToClientKey, c.appID, c.replay)
		if err != nil {
			c.stats.PacketsDropped++
			c.log.Debug("dropping packet", zap.Stringer("from", from), zap.Error(err))
			continue
		}
		c.processPacket(p)
		if c.state.IsIdle() {
			return
		}
	}
}

func (c *Client) processPacket(p packet.Packet) {
	switch v := p.(type) {
	case packet.ChallengeRequest:
		if !c.state.IsHandshaking() {
			return
		}
		c.challenge = v
		c.lastReceive = 0
		if c.state == ClientStateSendingConnectionRequest {
			c.transition(ClientEventChallengeRequest)
			c.lastSend = protocol.SendRate
		}
	case packet.ConnectionAccepted:
		switch c.state {
		case ClientStateSendingChallengeResponse:
			c.clientID = v.ClientID
			c.maxClients = v.MaxClients
			c.connectionTimeout = float64(v.ConnectionTimeout)
			c.lastReceive = 0
			c.transition(ClientEventConnectionAccepted)
			c.lastSend = protocol.SendRate
		case ClientStateConnected:
			c.lastReceive = 0
		}
	case packet.ConnectionDenied:
		if c.state.IsHandshaking() {
			c.log.Info("connection denied", zap.Stringer("server", c.server))
			c.nextServer(ClientEventConnectionDenied)
		}
	case packet.Keepalive:
		if c.state == ClientStateConnected {
			c.lastReceive = 0
		}
	case packet.Payload:
		if c.state != ClientStateConnected {
			return
		}
		c.lastReceive = 0
		data := make([]byte, len(v.Data))
		copy(data, v.Data)
		if err := c.queue.Push(data); err != nil {
			c.log.Debug("dropping payload", zap.Error(ErrReceiveQueueFull))
		}
	case packet.Disconnect:
		if c.state == ClientStateConnected {
			c.log.Info("server disconnected", zap.Stringer("server", c.server))
			c.transition(ClientEventDisconnect)
			c.reset()
		}
	}
}

// Send sends a single payload packet to the server.
func (c *Client) Send(data []byte) error {
	if c.state != ClientStateConnected {
		return ErrNotConnected
	}
	err := c.sendPacket(packet.Payload{Data: data})
	if err != nil {
		return fmt.Errorf("failed to send payload: %w", err)
	}
	return nil
}

// ReceivePayload pops the oldest received payload.
func (c *Client) ReceivePayload() ([]byte, bool) {
	return c.queue.Pop()
}

// Disconnect drops all queued payloads, notifies a connected server with
// several unacknowledged disconnect packets and resets the client.
func (c *Client) Disconnect() error {
	if c.state == ClientStateDisconnected && c.transport == nil {
		return nil
	}

	var err error
	if c.state == ClientStateConnected {
		c.queue.Clear()
		for i := 0; i < protocol.DisconnectRedundancy; i++ {
			err = multierr.Append(err, c.sendPacket(packet.Disconnect{}))
		}
	}
	err = multierr.Append(err, c.closeTransport())

	c.transition(ClientEventDisconnect)
	c.reset()
	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}


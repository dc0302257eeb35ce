package gamenet

import (
	"fmt"
	"sync/atomic"

	"github.com/jxsl13/gamenet/handshake"
	"github.com/jxsl13/gamenet/internal/container"
	"github.com/jxsl13/gamenet/network"
	"github.com/jxsl13/gamenet/transport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Event is a connection or disconnection of a client.
type Event struct {
	Type     handshake.EventType
	Index    int
	ClientID uint64
	Endpoint network.Endpoint
}

// ServerPacket is a packet received from the client in slot Index.
type ServerPacket struct {
	Index int
	Packet
}

// ServerSnapshot is the state of a Server after its last Update.
type ServerSnapshot struct {
	Running           bool
	MaxClients        int
	ConnectedClients  int
	PendingHandshakes int
	Stats             handshake.ServerStats
	Transport         transport.Counters

	// averaged over the connected clients
	RTT        float64
	PacketLoss float64
}

// Server attaches a transport to every connected slot of a handshake.Server.
type Server struct {
	log   *zap.Logger
	cfg   ServerConfig
	proto *handshake.Server

	transportConfig transport.Config
	transports      []*transport.Transport

	events *container.Ring[Event]
	// slot PopPacket looks at first
	next int

	snapshot atomic.Pointer[ServerSnapshot]
}

func NewServer(cfg ServerConfig, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	o.transport.ResendInterval = cfg.ResendInterval
	if _, err := transport.New(o.transport, func([]byte) error { return nil }); err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	serverOpts := append([]handshake.ServerOption{
		handshake.WithServerLogger(o.log),
		handshake.WithMaxClients(cfg.MaxClients),
		handshake.WithEventQueueCapacity(cfg.MaxClients * 16),
		handshake.WithByteRateCaps(cfg.InboundByteRate, cfg.OutboundByteRate),
	}, o.server...)

	proto, err := handshake.NewServer(cfg.ApplicationID, cfg.PublicKey, cfg.SecretKey, serverOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	s := &Server{
		log:             o.log,
		cfg:             cfg,
		proto:           proto,
		transportConfig: o.transport,
		transports:      make([]*transport.Transport, proto.MaxClients()),
		events:          container.NewRing[Event](proto.MaxClients() * 2),
	}
	s.updateSnapshot()
	return s, nil
}

// Protocol is the handshake layer of the server.
func (s *Server) Protocol() *handshake.Server {
	return s.proto
}

func (s *Server) Config() ServerConfig {
	return s.cfg
}

// Address is the bound endpoint, it differs from the configured one when
// the configured port is 0.
func (s *Server) Address() network.Endpoint {
	return s.proto.Address()
}

// Start binds the configured address.
func (s *Server) Start() error {
	if err := s.proto.Start(s.cfg.Bind, s.cfg.ConnectionTimeout); err != nil {
		return err
	}
	s.updateSnapshot()
	return nil
}

// Stop disconnects every client and releases the socket.
func (s *Server) Stop() error {
	err := s.proto.Stop()
	s.drainEvents()
	clear(s.transports)
	s.updateSnapshot()
	return err
}

// Close stops a running server and drops every queued event.
func (s *Server) Close() error {
	var err error
	if s.proto.Running() {
		err = multierr.Append(err, s.Stop())
	}
	s.events.Clear()
	return err
}

// Transport returns the transport of slot index or nil.
func (s *Server) Transport(index int) *transport.Transport {
	if index < 0 || index >= len(s.transports) {
		return nil
	}
	return s.transports[index]
}

// Update drives the handshake layer, feeds payloads into the slot
// transports and lets every transport resend and acknowledge.
func (s *Server) Update(dt float64, now uint64) {
	s.proto.Update(dt, now)
	s.drainEvents()

	for i, t := range s.transports {
		if t == nil {
			continue
		}
		if err := t.Update(dt); err != nil {
			s.log.Debug("transport update failed", zap.Int("index", i), zap.Error(err))
		}
	}
	s.updateSnapshot()
}

func (s *Server) drainEvents() {
	for {
		e, ok := s.proto.PopEvent()
		if !ok {
			return
		}

		switch e.Type {
		case handshake.EventNewConnection:
			index := e.Index
			t, err := transport.New(s.transportConfig, func(data []byte) error {
				return s.proto.SendTo(index, data)
			})
			if err != nil {
				s.log.Error("failed to create transport", zap.Int("index", index), zap.Error(err))
				if err := s.proto.DisconnectClient(index, true); err != nil {
					s.log.Error("failed to disconnect client", zap.Int("index", index), zap.Error(err))
				}
				continue
			}
			s.transports[index] = t
			s.pushEvent(e)
		case handshake.EventDisconnected:
			s.transports[e.Index] = nil
			s.pushEvent(e)
		case handshake.EventPayload:
			if t := s.transports[e.Index]; t != nil {
				if err := t.ProcessPacket(e.Payload); err != nil {
					s.log.Debug("dropping payload", zap.Int("index", e.Index), zap.Error(err))
				}
			}
			s.proto.FreePayload(e.Payload)
		}
	}
}

func (s *Server) pushEvent(e handshake.Event) {
	err := s.events.Push(Event{
		Type:     e.Type,
		Index:    e.Index,
		ClientID: e.ClientID,
		Endpoint: e.Endpoint,
	})
	if err != nil {
		s.log.Warn("dropping event", zap.Stringer("type", e.Type), zap.Int("index", e.Index), zap.Error(err))
	}
}

// PopEvent returns the oldest connection event.
func (s *Server) PopEvent() (Event, bool) {
	return s.events.Pop()
}

// PopPacket returns the next received packet. Slots take turns, within a
// slot reliable packets come first.
func (s *Server) PopPacket() (ServerPacket, bool) {
	n := len(s.transports)
	for i := 0; i < n; i++ {
		index := (s.next + i) % n
		t := s.transports[index]
		if t == nil {
			continue
		}
		if data, ok := t.ReceiveReliable(); ok {
			s.next = (index + 1) % n
			return ServerPacket{Index: index, Packet: Packet{Data: data, Reliable: true}}, true
		}
		if data, ok := t.ReceiveUnreliable(); ok {
			s.next = (index + 1) % n
			return ServerPacket{Index: index, Packet: Packet{Data: data}}, true
		}
	}
	return ServerPacket{}, false
}

// FreePacket hands p back to the transport of its slot for reuse.
func (s *Server) FreePacket(p ServerPacket) {
	if t := s.Transport(p.Index); t != nil {
		t.FreePacket(p.Data)
	}
}

// Send sends data to the client in slot index.
func (s *Server) Send(index int, data []byte, reliable bool) error {
	if index < 0 || index >= len(s.transports) {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, index)
	}
	t := s.transports[index]
	if t == nil {
		return fmt.Errorf("%w: slot %d", ErrNotConnected, index)
	}
	return t.Send(data, reliable)
}

// Broadcast sends data to every connected client.
func (s *Server) Broadcast(data []byte, reliable bool) error {
	var err error
	for i, t := range s.transports {
		if t != nil {
			err = multierr.Append(err, s.Send(i, data, reliable))
		}
	}
	return err
}

// DisconnectClient disconnects the client in slot index and notifies it.
func (s *Server) DisconnectClient(index int) error {
	err := s.proto.DisconnectClient(index, true)
	s.drainEvents()
	return err
}

// Snapshot returns the state after the last Update. It is safe for concurrent use.
func (s *Server) Snapshot() ServerSnapshot {
	return *s.snapshot.Load()
}

func (s *Server) updateSnapshot() {
	snap := &ServerSnapshot{
		Running:           s.proto.Running(),
		MaxClients:        s.proto.MaxClients(),
		ConnectedClients:  s.proto.ConnectedClients(),
		PendingHandshakes: s.proto.PendingHandshakes(),
		Stats:             s.proto.Stats(),
	}

	n := 0
	for _, t := range s.transports {
		if t == nil {
			continue
		}
		c := t.Counters()
		snap.Transport.FragmentsSent += c.FragmentsSent
		snap.Transport.FragmentsResent += c.FragmentsResent
		snap.Transport.FragmentsReceived += c.FragmentsReceived
		snap.Transport.FragmentsStale += c.FragmentsStale
		snap.Transport.FragmentsInvalid += c.FragmentsInvalid
		snap.Transport.PacketsSent += c.PacketsSent
		snap.Transport.PacketsReceived += c.PacketsReceived
		snap.Transport.PacketsDropped += c.PacketsDropped
		snap.Transport.AcksSent += c.AcksSent
		snap.Transport.FragmentsDeferred += c.FragmentsDeferred
		snap.RTT += t.Ack().RTT()
		snap.PacketLoss += t.Ack().PacketLoss()
		n++
	}
	if n > 0 {
		snap.RTT /= float64(n)
		snap.PacketLoss /= float64(n)
	}
	s.snapshot.Store(snap)
}

package handshake

import (
	"errors"
	"fmt"
	"math"

	"github.com/jxsl13/gamenet/crypt"
	"github.com/jxsl13/gamenet/internal/container"
	"github.com/jxsl13/gamenet/network"
	"github.com/jxsl13/gamenet/packet"
	"github.com/jxsl13/gamenet/protocol"
	"github.com/jxsl13/gamenet/token"
	"github.com/oxtoacart/bpool"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ServerStats are the counters of a Server.
type ServerStats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsDropped  uint64
	BytesSent       uint64
	BytesReceived   uint64

	ConnectionsAccepted uint64
	ConnectionsDenied   uint64
	ConnectionTimeouts  uint64
	HandshakeTimeouts   uint64
	EventsDropped       uint64

	InboundOverBudget  uint64
	OutboundOverBudget uint64
}

type clientSlot struct {
	connected bool
	confirmed bool

	endpoint network.Endpoint
	clientID uint64
	userData [protocol.UserDataSize]byte

	clientToServerKey crypt.Key
	serverToClientKey crypt.Key

	sequence uint64
	replay   *packet.ReplayBuffer

	// seconds since the last packet was sent or received
	lastSend    float64
	lastReceive float64
}

// NewServer creates a stopped server. publicKey verifies the signatures of the
// token authority, secretKey opens the secret section of connect tokens.
func NewServer(appID uint64, publicKey crypt.PublicKey, secretKey crypt.Key, options ...ServerOption) (*Server, error) {
	s := &Server{
		log:           zap.NewNop(),
		listen:        network.UDPListener,
		appID:         appID,
		publicKey:     publicKey,
		secretKey:     secretKey,
		maxClients:    protocol.MaxClients,
		eventCapacity: defaultEventCapacity(),
	}
	for _, o := range options {
		o(s)
	}
	if s.maxClients < 1 || s.maxClients > protocol.MaxClients {
		return nil, fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidMaxClient, s.maxClients, protocol.MaxClients)
	}

	s.slots = make([]clientSlot, s.maxClients)
	for i := range s.slots {
		s.slots[i].replay = packet.NewReplayBuffer()
	}
	s.endpointToID = container.NewTable[network.Endpoint, uint64](s.maxClients)
	s.idToIndex = container.NewTable[uint64, int](s.maxClients)
	s.pending = NewEncryptionMap(protocol.EncryptionMapCapacity)
	s.tokens = NewTokenCache(protocol.TokenCacheCapacity)
	s.events = container.NewRing[Event](s.eventCapacity)
	s.payloads = bpool.NewBytePool(s.eventCapacity, protocol.NetMaxPayloadSize)
	return s, nil
}

// Server accepts up to MaxClients authenticated clients.
type Server struct {
	log    *zap.Logger
	listen network.Listener

	appID     uint64
	publicKey crypt.PublicKey
	secretKey crypt.Key

	maxClients        int
	connectionTimeout float64
	eventCapacity     int

	running   bool
	transport network.Transport
	address   network.Endpoint

	// seconds accumulated from Update
	time float64
	now  uint64

	slots        []clientSlot
	numConnected int
	endpointToID *container.Table[network.Endpoint, uint64]
	idToIndex    *container.Table[uint64, int]
	pending      *EncryptionMap
	tokens       *TokenCache

	events   *container.Ring[Event]
	payloads *bpool.BytePool

	challengeNonce uint64
	deniedSequence uint64

	inbound  *byteBudget
	outbound *byteBudget
	stats    ServerStats

	sendBuf [protocol.NetMaxPacketSize]byte
	recvBuf [protocol.NetMaxPacketSize]byte
}

// Start opens the server's transport on bind. Clients that stay silent for
// connectionTimeout seconds are disconnected, a non positive value selects
// protocol.DefaultConnectionTimeout.
func (s *Server) Start(bind network.Endpoint, connectionTimeout float64) error {
	if s.running {
		return ErrAlreadyRunning
	}
	if connectionTimeout <= 0 {
		connectionTimeout = protocol.DefaultConnectionTimeout
	}

	t, err := s.listen(bind)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.transport = t
	s.address = t.LocalEndpoint()
	s.connectionTimeout = connectionTimeout
	s.running = true
	s.time = 0

	s.log.Info("server started",
		zap.Stringer("address", s.address),
		zap.Int("max_clients", s.maxClients),
		zap.Float64("connection_timeout", connectionTimeout),
	)
	return nil
}

// Stop disconnects every client with a notification and closes the transport.
// Pending events stay available until they are popped. Redeemed tokens are
// remembered across a restart.
func (s *Server) Stop() error {
	if !s.running {
		return ErrNotRunning
	}

	var err error
	for i := range s.slots {
		if s.slots[i].connected {
			err = multierr.Append(err, s.DisconnectClient(i, true))
		}
	}
	err = multierr.Append(err, s.transport.Close())

	s.transport = nil
	s.running = false
	s.pending.Clear()

	s.log.Info("server stopped", zap.Stringer("address", s.address))
	if err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

func (s *Server) Running() bool {
	return s.running
}

// Address is the endpoint the server is bound to. Connect tokens must list it.
func (s *Server) Address() network.Endpoint {
	return s.address
}

func (s *Server) MaxClients() int {
	return s.maxClients
}

func (s *Server) ConnectedClients() int {
	return s.numConnected
}

func (s *Server) PendingHandshakes() int {
	return s.pending.Len()
}

func (s *Server) Stats() ServerStats {
	stats := s.stats
	stats.InboundOverBudget = s.inbound.overBudget()
	stats.OutboundOverBudget = s.outbound.overBudget()
	return stats
}

func (s *Server) slot(index int) (*clientSlot, error) {
	if index < 0 || index >= len(s.slots) || !s.slots[index].connected {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, index)
	}
	return &s.slots[index], nil
}

func (s *Server) IsConnected(index int) bool {
	_, err := s.slot(index)
	return err == nil
}

// IsConfirmed reports whether the client in the slot sent anything after it was accepted.
func (s *Server) IsConfirmed(index int) bool {
	sl, err := s.slot(index)
	return err == nil && sl.confirmed
}

func (s *Server) ClientID(index int) (uint64, bool) {
	sl, err := s.slot(index)
	if err != nil {
		return 0, false
	}
	return sl.clientID, true
}

func (s *Server) ClientEndpoint(index int) (network.Endpoint, bool) {
	sl, err := s.slot(index)
	if err != nil {
		return network.NilEndpoint, false
	}
	return sl.endpoint, true
}

// ClientUserData is the user data of the connect token the client redeemed.
func (s *Server) ClientUserData(index int) ([protocol.UserDataSize]byte, bool) {
	sl, err := s.slot(index)
	if err != nil {
		return [protocol.UserDataSize]byte{}, false
	}
	return sl.userData, true
}

// PopEvent returns the oldest event.
func (s *Server) PopEvent() (Event, bool) {
	return s.events.Pop()
}

// FreePayload returns the payload of an EventPayload to the buffer pool.
func (s *Server) FreePayload(payload []byte) {
	if cap(payload) >= protocol.NetMaxPayloadSize {
		s.payloads.Put(payload[:protocol.NetMaxPayloadSize])
	}
}

func (s *Server) pushEvent(e Event) {
	err := s.events.Push(e)
	if err == nil {
		return
	}
	s.stats.EventsDropped++
	if e.Payload != nil {
		s.FreePayload(e.Payload)
	}
	s.log.Warn("dropping event",
		zap.Stringer("type", e.Type),
		zap.Int("index", e.Index),
		zap.Error(err),
	)
}

// SendTo sends a single payload packet to the client in slot index.
func (s *Server) SendTo(index int, data []byte) error {
	sl, err := s.slot(index)
	if err != nil {
		return fmt.Errorf("failed to send payload: %w", err)
	}
	err = s.sendSlotPacket(sl, packet.Payload{Data: data})
	if err != nil {
		return fmt.Errorf("failed to send payload to %d: %w", index, err)
	}
	return nil
}

// DisconnectClient frees the slot index. With notify the client receives
// several unacknowledged disconnect packets first.
func (s *Server) DisconnectClient(index int, notify bool) error {
	sl, err := s.slot(index)
	if err != nil {
		return fmt.Errorf("failed to disconnect client: %w", err)
	}

	if notify && s.transport != nil {
		for i := 0; i < protocol.DisconnectRedundancy; i++ {
			err = multierr.Append(err, s.sendSlotPacket(sl, packet.Disconnect{}))
		}
	}

	s.log.Info("client disconnected",
		zap.Int("index", index),
		zap.Uint64("client_id", sl.clientID),
		zap.Stringer("endpoint", sl.endpoint),
	)

	s.endpointToID.Remove(sl.endpoint)
	s.idToIndex.Remove(sl.clientID)
	s.pushEvent(Event{
		Type:     EventDisconnected,
		Index:    index,
		ClientID: sl.clientID,
		Endpoint: sl.endpoint,
	})

	replay := sl.replay
	*sl = clientSlot{replay: replay}
	sl.replay.Reset()
	s.numConnected--

	if err != nil {
		return fmt.Errorf("failed to notify client %d: %w", index, err)
	}
	return nil
}

// Update receives pending packets, answers handshakes, sends keepalives and
// disconnects timed out clients. now is the unix time in seconds.
func (s *Server) Update(dt float64, now uint64) {
	if !s.running {
		return
	}
	if u, ok := s.transport.(network.Updater); ok {
		u.Update(dt)
	}

	s.time += dt
	s.now = now
	for i := range s.slots {
		if s.slots[i].connected {
			s.slots[i].lastSend += dt
			s.slots[i].lastReceive += dt
		}
	}
	s.pending.Range(func(_ network.Endpoint, e *EncryptionState) bool {
		e.LastSend += dt
		e.LastReceive += dt
		return true
	})

	s.receivePackets()
	s.sendPackets()
	s.sweep()
}

func (s *Server) receivePackets() {
	for {
		n, from, err := s.transport.ReceiveFrom(s.recvBuf[:])
		if err != nil {
			if !errors.Is(err, network.ErrNoData) {
				s.log.Debug("failed to receive", zap.Error(err))
			}
			return
		}
		s.stats.PacketsReceived++
		s.stats.BytesReceived += uint64(n)
		if !s.inbound.spend(elapsedTime(s.time), n) {
			s.log.Debug("inbound traffic over budget", zap.Stringer("from", from), zap.Int("size", n))
		}

		if err := s.receivePacket(from, s.recvBuf[:n]); err != nil {
			s.stats.PacketsDropped++
			s.log.Debug("dropping packet", zap.Stringer("from", from), zap.Error(err))
		}
	}
}

var (
	errUnknownEndpoint   = errors.New("unknown endpoint")
	errEndpointMismatch  = errors.New("server address not in connect token")
	errAlreadyConnected  = errors.New("already connected")
	errTokenReused       = errors.New("connect token already redeemed")
	errWrongChallenge    = errors.New("challenge response does not match")
	errHandshakePending  = errors.New("handshake already pending")
	errTooManyHandshakes = errors.New("too many pending handshakes")
)

func (s *Server) receivePacket(from network.Endpoint, data []byte) error {
	t, ok := packet.PeekType(data)
	if !ok {
		return packet.ErrInvalidPacket
	}

	if t == protocol.PacketTypeConnectToken {
		if _, _, err := packet.Read(data, packet.ServerTypes, nil, s.appID, nil); err != nil {
			return err
		}
		return s.processConnectToken(from, data)
	}

	if id, ok := s.endpointToID.Find(from); ok {
		index, _ := s.idToIndex.Find(id)
		sl := &s.slots[index]
		p, _, err := packet.Read(data, packet.ServerTypes, &sl.clientToServerKey, s.appID, sl.replay)
		if err != nil {
			return err
		}
		s.processSlotPacket(index, sl, p)
		return nil
	}

	if e, ok := s.pending.Find(from); ok {
		p, _, err := packet.Read(data, packet.ServerTypes, &e.ClientToServerKey, s.appID, e.Replay)
		if err != nil {
			return err
		}
		return s.processPendingPacket(from, e, p)
	}
	return errUnknownEndpoint
}

func (s *Server) processConnectToken(from network.Endpoint, data []byte) error {
	t, err := token.DecryptServer(data, s.publicKey, s.secretKey, s.appID, s.now)
	if err != nil {
		return err
	}
	if !t.HasEndpoint(s.address) {
		return errEndpointMismatch
	}
	if s.endpointToID.Contains(from) || s.idToIndex.Contains(t.ClientID) {
		return errAlreadyConnected
	}
	if _, used := s.tokens.Find(t.Signature); used {
		return errTokenReused
	}
	if e, ok := s.pending.Find(from); ok {
		if e.Signature != t.Signature {
			return errHandshakePending
		}
		// a retransmission of the same token
		e.LastReceive = 0
		return nil
	}

	if s.numConnected >= s.maxClients {
		s.stats.ConnectionsDenied++
		s.log.Info("server full, denying connection",
			zap.Stringer("endpoint", from),
			zap.Uint64("client_id", t.ClientID),
		)
		seq := protocol.DeniedSequenceOffset + s.deniedSequence
		s.deniedSequence++
		return s.sendPacket(from, packet.ConnectionDenied{}, seq, &t.ServerToClientKey)
	}

	e := newEncryptionState(t)
	err = s.pending.Insert(from, e)
	if errors.Is(err, container.ErrFull) {
		s.evictPending()
		err = s.pending.Insert(from, e)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errTooManyHandshakes, err)
	}

	s.log.Debug("handshake started",
		zap.Stringer("endpoint", from),
		zap.Uint64("client_id", t.ClientID),
	)
	return s.sendChallenge(from, e)
}

func (s *Server) sendChallenge(to network.Endpoint, e *EncryptionState) error {
	c := packet.ChallengeRequest{Nonce: s.challengeNonce}
	s.challengeNonce++
	if err := crypt.RandomBytes(c.Data[:]); err != nil {
		return err
	}
	e.issue(c)

	seq := e.Sequence
	e.Sequence++
	e.LastSend = 0
	return s.sendPacket(to, c, seq, &e.ServerToClientKey)
}

func (s *Server) processPendingPacket(from network.Endpoint, e *EncryptionState, p packet.Packet) error {
	switch v := p.(type) {
	case packet.ChallengeResponse:
		if !e.Answers(v) {
			return errWrongChallenge
		}
		e.LastReceive = 0
		if s.idToIndex.Contains(e.ClientID) {
			s.pending.Remove(from)
			return errAlreadyConnected
		}
		if s.numConnected >= s.maxClients {
			s.pending.Remove(from)
			s.stats.ConnectionsDenied++
			seq := e.Sequence
			e.Sequence++
			return s.sendPacket(from, packet.ConnectionDenied{}, seq, &e.ServerToClientKey)
		}
		return s.promote(from, e)
	case packet.Disconnect:
		s.pending.Remove(from)
		return nil
	default:
		return fmt.Errorf("unexpected %s during handshake", p.Type())
	}
}

// promote moves a pending handshake into a free slot.
func (s *Server) promote(from network.Endpoint, e *EncryptionState) error {
	index := -1
	for i := range s.slots {
		if !s.slots[i].connected {
			index = i
			break
		}
	}
	if index < 0 {
		return ErrServerFull
	}

	sl := &s.slots[index]
	replay := sl.replay
	*sl = clientSlot{
		connected:         true,
		endpoint:          from,
		clientID:          e.ClientID,
		userData:          e.UserData,
		clientToServerKey: e.ClientToServerKey,
		serverToClientKey: e.ServerToClientKey,
		sequence:          e.Sequence,
		replay:            replay,
	}
	*sl.replay = *e.Replay

	if err := s.endpointToID.Insert(from, e.ClientID); err != nil {
		*sl = clientSlot{replay: replay}
		return fmt.Errorf("failed to promote client: %w", err)
	}
	if err := s.idToIndex.Insert(e.ClientID, index); err != nil {
		s.endpointToID.Remove(from)
		*sl = clientSlot{replay: replay}
		return fmt.Errorf("failed to promote client: %w", err)
	}
	s.tokens.Add(e.Signature, from, e.ExpirationTime)
	s.pending.Remove(from)
	s.numConnected++
	s.stats.ConnectionsAccepted++

	s.log.Info("client connected",
		zap.Int("index", index),
		zap.Uint64("client_id", sl.clientID),
		zap.Stringer("endpoint", from),
	)
	s.pushEvent(Event{
		Type:     EventNewConnection,
		Index:    index,
		ClientID: sl.clientID,
		Endpoint: from,
	})
	return s.sendAccepted(sl)
}

func (s *Server) sendAccepted(sl *clientSlot) error {
	return s.sendSlotPacket(sl, packet.ConnectionAccepted{
		ClientID:          sl.clientID,
		MaxClients:        uint32(s.maxClients),
		ConnectionTimeout: uint32(math.Ceil(s.connectionTimeout)),
	})
}

func (s *Server) processSlotPacket(index int, sl *clientSlot, p packet.Packet) {
	switch v := p.(type) {
	case packet.Keepalive:
		sl.confirmed = true
		sl.lastReceive = 0
	case packet.Payload:
		sl.confirmed = true
		sl.lastReceive = 0
		buf := s.payloads.Get()[:len(v.Data)]
		copy(buf, v.Data)
		s.pushEvent(Event{
			Type:     EventPayload,
			Index:    index,
			ClientID: sl.clientID,
			Endpoint: sl.endpoint,
			Payload:  buf,
		})
	case packet.Disconnect:
		if err := s.DisconnectClient(index, false); err != nil {
			s.log.Debug("failed to disconnect client", zap.Error(err))
		}
	case packet.ChallengeResponse:
		// the client did not see the acceptance yet
		sl.lastReceive = 0
	}
}

func (s *Server) sendPackets() {
	s.pending.Range(func(ep network.Endpoint, e *EncryptionState) bool {
		if e.LastSend >= protocol.SendRate {
			if err := s.sendChallenge(ep, e); err != nil {
				s.log.Debug("failed to send challenge", zap.Stringer("endpoint", ep), zap.Error(err))
			}
		}
		return true
	})

	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.connected || sl.lastSend < protocol.SendRate {
			continue
		}
		var err error
		if !sl.confirmed {
			err = s.sendAccepted(sl)
		}
		err = multierr.Append(err, s.sendSlotPacket(sl, packet.Keepalive{}))
		if err != nil {
			s.log.Debug("failed to send keepalive", zap.Int("index", i), zap.Error(err))
		}
	}
}

func (s *Server) sweep() {
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.connected && sl.lastReceive >= s.connectionTimeout {
			s.stats.ConnectionTimeouts++
			s.log.Info("client timed out", zap.Int("index", i), zap.Stringer("endpoint", sl.endpoint))
			if err := s.DisconnectClient(i, false); err != nil {
				s.log.Debug("failed to disconnect client", zap.Error(err))
			}
		}
	}
	s.evictPending()
	if n := s.tokens.RemoveExpired(s.now); n > 0 {
		s.log.Debug("forgot expired tokens", zap.Int("count", n))
	}
}

func (s *Server) evictPending() {
	for _, ep := range s.pending.RemoveTimedOut(s.now) {
		s.stats.HandshakeTimeouts++
		s.log.Debug("handshake timed out", zap.Stringer("endpoint", ep))
	}
}

func (s *Server) sendSlotPacket(sl *clientSlot, p packet.Packet) error {
	seq := sl.sequence
	sl.sequence++
	sl.lastSend = 0
	return s.sendPacket(sl.endpoint, p, seq, &sl.serverToClientKey)
}

func (s *Server) sendPacket(to network.Endpoint, p packet.Packet, seq uint64, key *crypt.Key) error {
	n, err := packet.Write(s.sendBuf[:], p, seq, key, s.appID)
	if err != nil {
		return err
	}
	if !s.outbound.spend(elapsedTime(s.time), n) {
		s.log.Debug("outbound traffic over budget", zap.Stringer("to", to), zap.Int("size", n))
	}
	s.stats.PacketsSent++
	s.stats.BytesSent += uint64(n)
	return s.transport.SendTo(to, s.sendBuf[:n])
}

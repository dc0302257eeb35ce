// Package ack implements per connection acknowledgements. Every packet gets
// a 16 bit sequence number and carries the newest received sequence together
// with a bitfield of the 32 sequences before it, so that delivery is
// inferred without separate ack packets. Round trip time, packet loss and
// bandwidth are estimated from the acknowledged packets.
package ack

import (
	"errors"
	"fmt"
	"math"

	"github.com/jxsl13/gamenet/internal/container"
	"github.com/jxsl13/gamenet/protocol"
	"github.com/jxsl13/gamenet/wire"
)

var (
	ErrPacketTooLarge  = errors.New("packet too large")
	ErrMalformedHeader = errors.New("malformed ack header")
	ErrNoSendFunc      = errors.New("missing send function")
)

// SendFunc hands a packet including its ack header to the lower layer.
type SendFunc func(data []byte) error

type Config struct {
	// MaxPacketSize is the biggest payload SendPacket and ReceivePacket accept.
	MaxPacketSize int

	SentCapacity     int
	ReceivedCapacity int

	RTTSmoothingFactor        float64
	PacketLossSmoothingFactor float64
	BandwidthSmoothingFactor  float64
}

// DefaultConfig fits a payload and its ack header into a single protocol payload packet.
func DefaultConfig() Config {
	return Config{
		MaxPacketSize:             protocol.NetMaxPayloadSize - protocol.AckHeaderSize,
		SentCapacity:              protocol.DefaultAckCapacity,
		ReceivedCapacity:          protocol.DefaultAckCapacity,
		RTTSmoothingFactor:        0.001,
		PacketLossSmoothingFactor: 0.1,
		BandwidthSmoothingFactor:  0.1,
	}
}

// Counters count packets by outcome.
type Counters struct {
	Sent      uint64
	Received  uint64
	Acked     uint64
	Stale     uint64
	Duplicate uint64
	Invalid   uint64
	TooLarge  uint64
}

type sentPacket struct {
	time  float64
	size  int
	acked bool
}

type receivedPacket struct {
	time float64
	size int
}

// System tracks sent and received packets of one connection.
type System struct {
	cfg  Config
	send SendFunc

	time     float64
	sequence uint16

	sent     *container.SequenceBuffer[sentPacket]
	received *container.SequenceBuffer[receivedPacket]
	acks     []uint16

	rtt                float64
	packetLoss         float64
	outgoingBandwidth  float64
	incomingBandwidth  float64
	anyPacketsReceived bool

	counters Counters
	buf      []byte
}

// New creates an ack system that passes every packet to send.
func New(cfg Config, send SendFunc) (*System, error) {
	if send == nil {
		return nil, ErrNoSendFunc
	}
	def := DefaultConfig()
	if cfg.MaxPacketSize <= 0 {
		cfg.MaxPacketSize = def.MaxPacketSize
	}
	if cfg.MaxPacketSize > math.MaxUint16 {
		return nil, fmt.Errorf("%w: max packet size %d exceeds %d", ErrPacketTooLarge, cfg.MaxPacketSize, math.MaxUint16)
	}
	if cfg.SentCapacity <= 0 {
		cfg.SentCapacity = def.SentCapacity
	}
	if cfg.ReceivedCapacity <= 0 {
		cfg.ReceivedCapacity = def.ReceivedCapacity
	}
	if cfg.RTTSmoothingFactor <= 0 {
		cfg.RTTSmoothingFactor = def.RTTSmoothingFactor
	}
	if cfg.PacketLossSmoothingFactor <= 0 {
		cfg.PacketLossSmoothingFactor = def.PacketLossSmoothingFactor
	}
	if cfg.BandwidthSmoothingFactor <= 0 {
		cfg.BandwidthSmoothingFactor = def.BandwidthSmoothingFactor
	}

	return &System{
		cfg:      cfg,
		send:     send,
		sent:     container.NewSequenceBuffer[sentPacket](cfg.SentCapacity),
		received: container.NewSequenceBuffer[receivedPacket](cfg.ReceivedCapacity),
		acks:     make([]uint16, 0, protocol.AckBitsCount),
		buf:      make([]byte, protocol.AckHeaderSize+cfg.MaxPacketSize),
	}, nil
}

func (s *System) Config() Config {
	return s.cfg
}

// Reset forgets all packets, acks and estimates.
func (s *System) Reset() {
	s.time = 0
	s.sequence = 0
	s.sent.Reset()
	s.received.Reset()
	s.acks = s.acks[:0]
	s.rtt = 0
	s.packetLoss = 0
	s.outgoingBandwidth = 0
	s.incomingBandwidth = 0
	s.anyPacketsReceived = false
	s.counters = Counters{}
}

// NextSequence is the sequence the next sent packet gets.
func (s *System) NextSequence() uint16 {
	return s.sequence
}

func (s *System) ackBits() (ack uint16, bits uint32) {
	if !s.anyPacketsReceived {
		return 0, 0
	}
	ack = s.received.Sequence() - 1
	for i := uint16(0); i < protocol.AckBitsCount; i++ {
		if s.received.Exists(ack - i) {
			bits |= 1 << i
		}
	}
	return ack, bits
}

// SendPacket prefixes payload with an ack header and sends it.
// It returns the sequence the packet was sent with.
func (s *System) SendPacket(payload []byte) (uint16, error) {
	if len(payload) > s.cfg.MaxPacketSize {
		s.counters.TooLarge++
		return 0, fmt.Errorf("%w: %d bytes, at most %d", ErrPacketTooLarge, len(payload), s.cfg.MaxPacketSize)
	}

	seq := s.sequence
	s.sequence++

	if e := s.sent.Insert(seq); e != nil {
		*e = sentPacket{time: s.time, size: protocol.AckHeaderSize + len(payload)}
	}

	ack, bits := s.ackBits()
	p := wire.NewPacker(s.buf)
	p.AddUint16(seq)
	p.AddUint16(ack)
	p.AddUint32(bits)
	p.AddUint16(uint16(len(payload)))
	p.AddBytes(payload)
	if err := p.Err(); err != nil {
		return 0, fmt.Errorf("failed to write ack header: %w", err)
	}

	s.counters.Sent++
	if err := s.send(p.Bytes()); err != nil {
		return seq, fmt.Errorf("failed to send packet %d: %w", seq, err)
	}
	return seq, nil
}

// ReceivePacket processes the ack header of data and returns its payload,
// which aliases data. Stale and duplicate packets are not errors, they are
// counted and reported with accepted set to false.
func (s *System) ReceivePacket(data []byte) (payload []byte, accepted bool, err error) {
	if len(data) < protocol.AckHeaderSize {
		s.counters.Invalid++
		return nil, false, fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(data))
	}
	if len(data)-protocol.AckHeaderSize > s.cfg.MaxPacketSize {
		s.counters.TooLarge++
		return nil, false, fmt.Errorf("%w: %d bytes, at most %d", ErrPacketTooLarge, len(data)-protocol.AckHeaderSize, s.cfg.MaxPacketSize)
	}

	u := wire.NewUnpacker(data)
	seq, _ := u.NextUint16()
	ack, _ := u.NextUint16()
	bits, _ := u.NextUint32()
	size, _ := u.NextUint16()
	if int(size) != u.RemainingSize() {
		s.counters.Invalid++
		return nil, false, fmt.Errorf("%w: payload size %d, got %d bytes", ErrMalformedHeader, size, u.RemainingSize())
	}

	if s.received.IsStale(seq) {
		s.counters.Stale++
		return nil, false, nil
	}

	duplicate := s.received.Exists(seq)
	if !duplicate {
		e := s.received.Insert(seq)
		if e == nil {
			s.counters.Stale++
			return nil, false, nil
		}
		*e = receivedPacket{time: s.time, size: len(data)}
		s.anyPacketsReceived = true
	}

	s.processAcks(ack, bits)

	if duplicate {
		s.counters.Duplicate++
		return nil, false, nil
	}
	s.counters.Received++
	return u.Remaining(), true, nil
}

func (s *System) processAcks(ack uint16, bits uint32) {
	for i := uint16(0); i < protocol.AckBitsCount; i++ {
		if bits&(1<<i) == 0 {
			continue
		}
		seq := ack - i
		e := s.sent.Find(seq)
		if e == nil || e.acked {
			continue
		}
		e.acked = true
		s.acks = append(s.acks, seq)
		s.counters.Acked++

		sample := s.time - e.time
		s.rtt = max(0, s.rtt+(sample-s.rtt)*s.cfg.RTTSmoothingFactor)
	}
}

// Acks are the sequences of sent packets acknowledged since the last ClearAcks.
func (s *System) Acks() []uint16 {
	return s.acks
}

func (s *System) ClearAcks() {
	s.acks = s.acks[:0]
}

// Update advances the clock and refreshes the loss and bandwidth estimates.
func (s *System) Update(dt float64) {
	s.time += dt
	s.updatePacketLoss()
	s.updateOutgoingBandwidth()
	s.updateIncomingBandwidth()
}

func smooth(current, sample, factor float64) float64 {
	if math.Abs(current-sample) > 0.00001 {
		return current + (sample-current)*factor
	}
	return sample
}

// oldest half of a window, these packets had time to be acknowledged
func window(newest uint16, capacity int) (base uint16, samples int) {
	return newest - uint16(capacity), capacity / 2
}

func (s *System) updatePacketLoss() {
	base, samples := window(s.sent.Sequence(), s.sent.Cap())
	var existing, dropped int
	for i := 0; i < samples; i++ {
		e := s.sent.Find(base + uint16(i))
		if e == nil {
			continue
		}
		existing++
		if !e.acked {
			dropped++
		}
	}
	var loss float64
	if existing > 0 {
		loss = float64(dropped) / float64(existing)
	}
	s.packetLoss = smooth(s.packetLoss, loss, s.cfg.PacketLossSmoothingFactor)
}

func (s *System) updateOutgoingBandwidth() {
	base, samples := window(s.sent.Sequence(), s.sent.Cap())
	bytes, start, finish := 0, math.MaxFloat64, 0.0
	for i := 0; i < samples; i++ {
		e := s.sent.Find(base + uint16(i))
		if e == nil {
			continue
		}
		bytes += e.size
		start = min(start, e.time)
		finish = max(finish, e.time)
	}
	if start < finish {
		s.outgoingBandwidth = smooth(s.outgoingBandwidth, float64(bytes)/(finish-start), s.cfg.BandwidthSmoothingFactor)
	}
}

func (s *System) updateIncomingBandwidth() {
	base, samples := window(s.received.Sequence(), s.received.Cap())
	bytes, start, finish := 0, math.MaxFloat64, 0.0
	for i := 0; i < samples; i++ {
		e := s.received.Find(base + uint16(i))
		if e == nil {
			continue
		}
		bytes += e.size
		start = min(start, e.time)
		finish = max(finish, e.time)
	}
	if start < finish {
		s.incomingBandwidth = smooth(s.incomingBandwidth, float64(bytes)/(finish-start), s.cfg.BandwidthSmoothingFactor)
	}
}

// RTT is the smoothed round trip time in seconds.
func (s *System) RTT() float64 {
	return s.rtt
}

// PacketLoss is the smoothed fraction of sent packets that were not acknowledged.
func (s *System) PacketLoss() float64 {
	return s.packetLoss
}

// OutgoingBandwidth is the smoothed send rate in bytes per second.
func (s *System) OutgoingBandwidth() float64 {
	return s.outgoingBandwidth
}

// IncomingBandwidth is the smoothed receive rate in bytes per second.
func (s *System) IncomingBandwidth() float64 {
	return s.incomingBandwidth
}

func (s *System) Counters() Counters {
	return s.counters
}

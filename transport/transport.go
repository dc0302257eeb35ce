// Package transport implements reliable ordered and fire and forget delivery
// of arbitrarily sized packets on top of the ack system.
//
// Packets are split into fragments that fit into a single datagram. A fire
// and forget packet is sent once. Reliable packets are sent one at a time:
// the fragments of the packet at the head of the send queue are resent until
// every one of them is acknowledged, then the next packet starts.
package transport

import (
	"errors"
	"fmt"

	"github.com/jxsl13/gamenet/ack"
	"github.com/jxsl13/gamenet/internal/container"
	"github.com/jxsl13/gamenet/protocol"
	"github.com/jxsl13/gamenet/wire"
	"github.com/oxtoacart/bpool"
)

var (
	ErrInvalidConfig      = errors.New("invalid transport config")
	ErrEmptyPacket        = errors.New("empty packet")
	ErrPacketTooLarge     = errors.New("packet too large")
	ErrSendQueueFull      = errors.New("send queue full")
	ErrReceiveQueueFull   = errors.New("receive queue full")
	ErrMalformedFragment  = errors.New("malformed fragment")
	ErrFragmentsExhausted = errors.New("no free fragment slot")
)

// Counters count fragments and packets by outcome.
type Counters struct {
	FragmentsSent     uint64
	FragmentsResent   uint64
	FragmentsReceived uint64
	FragmentsStale    uint64
	FragmentsInvalid  uint64
	PacketsSent       uint64
	PacketsReceived   uint64
	PacketsDropped    uint64
	AcksSent          uint64

	// reliable fragments refused while the receive queue was full
	FragmentsDeferred uint64
}

type outgoingPacket struct {
	data       []byte
	count      int
	sequence   uint16
	started    bool
	nextIndex  int
	acked      []bool
	ackedCount int
}

type fragment struct {
	index int
	// time of the last transmission
	time float64
	// header and payload, from the fragment buffer pool
	data []byte
}

type reassembly struct {
	count    int
	received int
	have     []bool
	data     []byte
	size     int
}

type lane struct {
	entries *container.SequenceBuffer[reassembly]
	queue   *container.Ring[[]byte]

	// reassembly sequence of the next outgoing packet
	sendSequence uint16
	// reliable lane only, the only incoming reassembly sequence accepted
	expected uint16
}

// Transport delivers packets over one connection. It is not safe for concurrent use.
type Transport struct {
	cfg  Config
	ack  *ack.System
	time float64

	lanes [2]lane

	sendQueue *container.Ring[*outgoingPacket]
	fragments *container.Pool[fragment]
	// ack sequence of every transmission of a reliable fragment
	inflight *container.SequenceBuffer[container.Handle]
	buffers  *bpool.BytePool
	// buffers of received single fragment packets
	packets *bpool.BytePool

	// a fragment arrived that no outgoing datagram acknowledged yet
	ackPending bool

	counters Counters
}

// New creates a transport that hands every datagram payload to send.
func New(cfg Config, send ack.SendFunc) (*Transport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	a, err := ack.New(cfg.Ack, send)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	cfg.Ack = a.Config()

	t := &Transport{
		cfg:       cfg,
		ack:       a,
		sendQueue: container.NewRing[*outgoingPacket](cfg.SendQueueCapacity),
		fragments: container.NewPool[fragment](cfg.MaxFragmentsInFlight),
		inflight:  container.NewSequenceBuffer[container.Handle](cfg.Ack.SentCapacity),
		buffers:   bpool.NewBytePool(cfg.MaxFragmentsInFlight, protocol.FragmentHeaderSize+cfg.FragmentSize),
		packets:   bpool.NewBytePool(cfg.ReceiveQueueCapacity, cfg.FragmentSize),
	}
	for i := range t.lanes {
		t.lanes[i] = lane{
			entries: container.NewSequenceBuffer[reassembly](cfg.ReassemblyCapacity),
			queue:   container.NewRing[[]byte](cfg.ReceiveQueueCapacity),
		}
	}
	return t, nil
}

// Ack is the ack system underneath, for its statistics.
func (t *Transport) Ack() *ack.System {
	return t.ack
}

func (t *Transport) Counters() Counters {
	return t.counters
}

func (t *Transport) sendDatagram(payload []byte) (uint16, error) {
	t.ackPending = false
	return t.ack.SendPacket(payload)
}

func (t *Transport) fragmentCount(size int) int {
	return (size + t.cfg.FragmentSize - 1) / t.cfg.FragmentSize
}

// Send queues a reliable packet or sends a fire and forget packet right away.
// data is copied.
func (t *Transport) Send(data []byte, reliable bool) error {
	if len(data) == 0 {
		return ErrEmptyPacket
	}
	if len(data) > t.cfg.MaxPacketSize {
		return fmt.Errorf("%w: %d bytes, at most %d", ErrPacketTooLarge, len(data), t.cfg.MaxPacketSize)
	}

	if !reliable {
		return t.sendUnreliable(data)
	}

	p := &outgoingPacket{
		data:  append([]byte(nil), data...),
		count: t.fragmentCount(len(data)),
	}
	p.acked = make([]bool, p.count)
	if err := t.sendQueue.Push(p); err != nil {
		return fmt.Errorf("%w: %d packets queued", ErrSendQueueFull, t.sendQueue.Len())
	}
	t.counters.PacketsSent++
	return t.pump()
}

func (t *Transport) sendUnreliable(data []byte) error {
	l := &t.lanes[protocol.LaneUnreliable]
	seq := l.sendSequence
	l.sendSequence++

	count := t.fragmentCount(len(data))
	buf := t.buffers.Get()
	defer t.buffers.Put(buf)

	for i := 0; i < count; i++ {
		n, err := t.writeFragment(buf, protocol.LaneUnreliable, seq, count, i, data)
		if err != nil {
			return err
		}
		if _, err := t.sendDatagram(buf[:n]); err != nil {
			return fmt.Errorf("failed to send fragment %d of %d: %w", i, count, err)
		}
		t.counters.FragmentsSent++
	}
	t.counters.PacketsSent++
	return nil
}

// writeFragment writes the header and payload of fragment index into buf.
func (t *Transport) writeFragment(buf []byte, laneID uint8, seq uint16, count, index int, data []byte) (int, error) {
	start := index * t.cfg.FragmentSize
	end := min(start+t.cfg.FragmentSize, len(data))

	p := wire.NewPacker(buf)
	p.AddUint8(laneID)
	p.AddUint16(seq)
	p.AddUint16(uint16(count))
	p.AddUint16(uint16(index))
	p.AddUint16(uint16(end - start))
	p.AddBytes(data[start:end])
	if err := p.Err(); err != nil {
		return 0, fmt.Errorf("failed to write fragment: %w", err)
	}
	return p.Size(), nil
}

// pump starts transmitting fragments of the head packet while slots are free.
func (t *Transport) pump() error {
	head, ok := t.sendQueue.Peek()
	if !ok {
		return nil
	}
	p := *head
	if !p.started {
		p.started = true
		p.sequence = t.lanes[protocol.LaneReliable].sendSequence
	}

	for p.nextIndex < p.count && !t.fragments.IsFull() {
		h, f, err := t.fragments.Alloc()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFragmentsExhausted, err)
		}
		buf := t.buffers.Get()
		n, err := t.writeFragment(buf, protocol.LaneReliable, p.sequence, p.count, p.nextIndex, p.data)
		if err != nil {
			t.buffers.Put(buf)
			t.fragments.Free(h)
			return err
		}
		*f = fragment{index: p.nextIndex, data: buf[:n]}
		p.nextIndex++

		if err := t.transmit(h, f); err != nil {
			return err
		}
		t.counters.FragmentsSent++
	}
	return nil
}

func (t *Transport) transmit(h container.Handle, f *fragment) error {
	f.time = t.time
	seq, err := t.sendDatagram(f.data)
	if e := t.inflight.Insert(seq); e != nil {
		*e = h
	}
	if err != nil {
		return fmt.Errorf("failed to send reliable fragment %d: %w", f.index, err)
	}
	return nil
}

// Update advances the clock, releases acknowledged fragments, resends the
// fragments that are overdue and starts the next queued packets. A peer that
// only receives answers with an empty datagram so that its acks flow back.
func (t *Transport) Update(dt float64) error {
	t.time += dt
	t.ack.Update(dt)

	t.processAcks()

	var resendErr error
	t.fragments.Range(func(h container.Handle, f *fragment) bool {
		if t.time-f.time < t.cfg.ResendInterval {
			return true
		}
		if err := t.transmit(h, f); err != nil {
			resendErr = err
			return false
		}
		t.counters.FragmentsResent++
		return true
	})
	if resendErr != nil {
		return resendErr
	}
	if err := t.pump(); err != nil {
		return err
	}

	if t.ackPending {
		if _, err := t.sendDatagram(nil); err != nil {
			return fmt.Errorf("failed to send acks: %w", err)
		}
		t.counters.AcksSent++
	}
	return nil
}

func (t *Transport) processAcks() {
	defer t.ack.ClearAcks()

	head, ok := t.sendQueue.Peek()
	for _, seq := range t.ack.Acks() {
		hp := t.inflight.Find(seq)
		if hp == nil {
			continue
		}
		h := *hp
		t.inflight.Remove(seq)

		f, valid := t.fragments.Get(h)
		if !valid {
			// another transmission of the fragment was acknowledged first
			continue
		}
		if ok {
			p := *head
			if !p.acked[f.index] {
				p.acked[f.index] = true
				p.ackedCount++
			}
		}
		t.buffers.Put(f.data[:cap(f.data)])
		t.fragments.Free(h)
	}

	if ok && (*head).ackedCount == (*head).count {
		t.sendQueue.Pop()
		t.lanes[protocol.LaneReliable].sendSequence++
	}
}

// UnackedFragments is the number of reliable fragments, queued or in flight,
// that were not acknowledged yet.
func (t *Transport) UnackedFragments() int {
	n := 0
	for i := 0; i < t.sendQueue.Len(); i++ {
		p, _ := t.sendQueue.At(i)
		n += (*p).count - (*p).ackedCount
	}
	return n
}

// ProcessPacket handles a datagram payload received from the peer.
// A reliable fragment that arrives while the reliable receive queue is full
// is rejected before the ack system sees it, so the peer sends it again.
func (t *Transport) ProcessPacket(data []byte) error {
	if t.reliableBlocked(data) {
		t.counters.FragmentsDeferred++
		return fmt.Errorf("%w: lane %d", ErrReceiveQueueFull, protocol.LaneReliable)
	}

	payload, accepted, err := t.ack.ReceivePacket(data)
	if err != nil {
		return err
	}
	if !accepted || len(payload) == 0 {
		return nil
	}
	t.ackPending = true

	u := wire.NewUnpacker(payload)
	laneID, _ := u.NextUint8()
	seq, _ := u.NextUint16()
	count, _ := u.NextUint16()
	index, _ := u.NextUint16()
	size, err := u.NextUint16()
	if err != nil {
		t.counters.FragmentsInvalid++
		return fmt.Errorf("%w: short header", ErrMalformedFragment)
	}

	switch {
	case laneID != protocol.LaneUnreliable && laneID != protocol.LaneReliable,
		count == 0, index >= count,
		int(size) != u.RemainingSize(),
		int(size) > t.cfg.FragmentSize,
		index+1 < count && int(size) != t.cfg.FragmentSize,
		int(count-1)*t.cfg.FragmentSize+int(size) > t.cfg.MaxPacketSize:
		t.counters.FragmentsInvalid++
		return fmt.Errorf("%w: lane %d, fragment %d of %d, %d bytes", ErrMalformedFragment, laneID, index, count, size)
	}
	t.counters.FragmentsReceived++

	return t.reassemble(laneID, seq, int(count), int(index), u.Remaining())
}

// reliableBlocked peeks at the fragment header behind the ack header.
func (t *Transport) reliableBlocked(data []byte) bool {
	if len(data) < protocol.AckHeaderSize+protocol.FragmentHeaderSize {
		return false
	}
	return data[protocol.AckHeaderSize] == protocol.LaneReliable &&
		t.lanes[protocol.LaneReliable].queue.IsFull()
}

func (t *Transport) reassemble(laneID uint8, seq uint16, count, index int, data []byte) error {
	l := &t.lanes[laneID]
	if laneID == protocol.LaneReliable && seq != l.expected {
		t.counters.FragmentsStale++
		return nil
	}

	e := l.entries.Find(seq)
	if e == nil {
		e = l.entries.Insert(seq)
		if e == nil {
			t.counters.FragmentsStale++
			return nil
		}
		*e = reassembly{
			count: count,
			have:  make([]bool, count),
		}
		if count == 1 {
			e.data = t.packets.Get()
		} else {
			e.data = make([]byte, count*t.cfg.FragmentSize)
		}
	}
	if e.count != count {
		t.counters.FragmentsInvalid++
		return nil
	}
	if e.have[index] {
		return nil
	}

	e.have[index] = true
	e.received++
	copy(e.data[index*t.cfg.FragmentSize:], data)
	if index == count-1 {
		e.size = index*t.cfg.FragmentSize + len(data)
	}
	if e.received < e.count {
		return nil
	}

	packet := e.data[:e.size]
	l.entries.Remove(seq)
	if laneID == protocol.LaneReliable {
		l.expected++
	}
	if err := l.queue.Push(packet); err != nil {
		t.counters.PacketsDropped++
		return fmt.Errorf("%w: lane %d", ErrReceiveQueueFull, laneID)
	}
	t.counters.PacketsReceived++
	return nil
}

// ReceiveReliable pops the next reliable packet in send order.
func (t *Transport) ReceiveReliable() ([]byte, bool) {
	return t.lanes[protocol.LaneReliable].queue.Pop()
}

// ReceiveUnreliable pops the next fire and forget packet.
func (t *Transport) ReceiveUnreliable() ([]byte, bool) {
	return t.lanes[protocol.LaneUnreliable].queue.Pop()
}

// FreePacket hands a received packet back for reuse. data must not be
// used afterwards.
func (t *Transport) FreePacket(data []byte) {
	if cap(data) == t.cfg.FragmentSize {
		t.packets.Put(data[:cap(data)])
	}
}

// Reset drops every queued, in flight and partially received packet.
func (t *Transport) Reset() {
	t.time = 0
	t.ack.Reset()
	t.sendQueue.Clear()
	t.fragments.Range(func(h container.Handle, f *fragment) bool {
		t.buffers.Put(f.data[:cap(f.data)])
		return true
	})
	t.fragments.Reset()
	t.inflight.Reset()
	for i := range t.lanes {
		t.lanes[i].entries.Reset()
		t.lanes[i].queue.Clear()
		t.lanes[i].sendSequence = 0
		t.lanes[i].expected = 0
	}
	t.ackPending = false
	t.counters = Counters{}
}

package ack

import (
	"encoding/binary"
	"testing"

	"github.com/jxsl13/gamenet/protocol"
	"github.com/stretchr/testify/require"
)

type link struct {
	packets [][]byte
	drop    func(i int) bool
	sent    int
}

func (l *link) send(data []byte) error {
	i := l.sent
	l.sent++
	if l.drop != nil && l.drop(i) {
		return nil
	}
	l.packets = append(l.packets, append([]byte(nil), data...))
	return nil
}

// deliver feeds every queued packet to s and returns the accepted payloads.
func (l *link) deliver(t *testing.T, s *System) [][]byte {
	var payloads [][]byte
	for _, p := range l.packets {
		payload, ok, err := s.ReceivePacket(p)
		require.NoError(t, err)
		if ok {
			payloads = append(payloads, append([]byte(nil), payload...))
		}
	}
	l.packets = l.packets[:0]
	return payloads
}

func newPair(t *testing.T) (a, b *System, ab, ba *link) {
	ab, ba = &link{}, &link{}
	a, err := New(DefaultConfig(), ab.send)
	require.NoError(t, err)
	b, err = New(DefaultConfig(), ba.send)
	require.NoError(t, err)
	return a, b, ab, ba
}

func TestSendReceiveAcks(t *testing.T) {
	require := require.New(t)
	a, b, ab, ba := newPair(t)

	for i := 0; i < 100; i++ {
		seq, err := a.SendPacket([]byte{byte(i)})
		require.NoError(err)
		require.Equal(uint16(i), seq)

		payloads := ab.deliver(t, b)
		require.Equal([][]byte{{byte(i)}}, payloads)

		_, err = b.SendPacket(nil)
		require.NoError(err)
		ba.deliver(t, a)
	}

	require.Len(a.Acks(), 100)
	for i, seq := range a.Acks() {
		require.Equal(uint16(i), seq)
	}
	a.ClearAcks()
	require.Empty(a.Acks())

	require.Equal(Counters{Sent: 100, Received: 100, Acked: 100}, a.Counters())
	require.Equal(uint64(100), b.Counters().Received)
	require.Equal(uint16(100), a.NextSequence())
}

func TestAcksUnderLoss(t *testing.T) {
	require := require.New(t)
	a, b, ab, ba := newPair(t)
	ab.drop = func(i int) bool { return i%2 == 1 }

	for i := 0; i < 20; i++ {
		_, err := a.SendPacket([]byte("x"))
		require.NoError(err)
	}
	require.Len(ab.deliver(t, b), 10)

	_, err := b.SendPacket(nil)
	require.NoError(err)
	ba.deliver(t, a)

	acked := append([]uint16(nil), a.Acks()...)
	require.Len(acked, 10)
	for _, seq := range acked {
		require.Zero(seq % 2)
	}
}

func TestAckBitsOnTheWire(t *testing.T) {
	require := require.New(t)
	a, b, ab, ba := newPair(t)
	ab.drop = func(i int) bool { return i == 2 }

	for i := 0; i < 4; i++ {
		_, err := a.SendPacket([]byte{1})
		require.NoError(err)
	}
	ab.deliver(t, b)

	_, err := b.SendPacket([]byte{2, 3})
	require.NoError(err)
	require.Len(ba.packets, 1)

	header := ba.packets[0]
	require.Len(header, protocol.AckHeaderSize+2)
	require.Equal(uint16(0), binary.LittleEndian.Uint16(header[0:]))
	require.Equal(uint16(3), binary.LittleEndian.Uint16(header[2:]))
	require.Equal(uint32(0b1101), binary.LittleEndian.Uint32(header[4:]))
	require.Equal(uint16(2), binary.LittleEndian.Uint16(header[8:]))
}

func TestReceiveErrors(t *testing.T) {
	sink := func([]byte) error { return nil }
	cfg := DefaultConfig()
	cfg.MaxPacketSize = 16
	s, err := New(cfg, sink)
	require.NoError(t, err)

	_, err = s.SendPacket(make([]byte, 17))
	require.ErrorIs(t, err, ErrPacketTooLarge)

	header := func(seq, size uint16, payload int) []byte {
		b := make([]byte, protocol.AckHeaderSize+payload)
		binary.LittleEndian.PutUint16(b[0:], seq)
		binary.LittleEndian.PutUint16(b[8:], size)
		return b
	}

	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"short", make([]byte, protocol.AckHeaderSize-1), ErrMalformedHeader},
		{"size mismatch", header(0, 5, 4), ErrMalformedHeader},
		{"too large", header(0, 17, 17), ErrPacketTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := s.ReceivePacket(tt.data)
			require.ErrorIs(t, err, tt.err)
			require.False(t, ok)
		})
	}

	c := s.Counters()
	require.Equal(t, uint64(2), c.Invalid)
	require.Equal(t, uint64(2), c.TooLarge)
}

func TestStaleAndDuplicatePackets(t *testing.T) {
	require := require.New(t)
	a, b, ab, _ := newPair(t)

	_, err := a.SendPacket([]byte("first"))
	require.NoError(err)
	first := append([]byte(nil), ab.packets[0]...)
	ab.deliver(t, b)

	_, ok, err := b.ReceivePacket(first)
	require.NoError(err)
	require.False(ok)
	require.Equal(uint64(1), b.Counters().Duplicate)

	for i := 0; i < protocol.DefaultAckCapacity+10; i++ {
		_, err := a.SendPacket([]byte("x"))
		require.NoError(err)
	}
	ab.deliver(t, b)

	_, ok, err = b.ReceivePacket(first)
	require.NoError(err)
	require.False(ok)
	require.Equal(uint64(1), b.Counters().Stale)
}

func TestRTT(t *testing.T) {
	require := require.New(t)
	a, b, ab, ba := newPair(t)

	_, err := a.SendPacket(nil)
	require.NoError(err)
	a.Update(0.5)
	ab.deliver(t, b)
	_, err = b.SendPacket(nil)
	require.NoError(err)
	ba.deliver(t, a)

	require.InDelta(0.5*DefaultConfig().RTTSmoothingFactor, a.RTT(), 1e-9)
}

func TestPacketLossAndBandwidth(t *testing.T) {
	require := require.New(t)
	sink := func([]byte) error { return nil }
	s, err := New(DefaultConfig(), sink)
	require.NoError(err)

	for i := 0; i < protocol.DefaultAckCapacity; i++ {
		_, err := s.SendPacket(make([]byte, 90))
		require.NoError(err)
		s.Update(0.01)
	}
	require.Greater(s.PacketLoss(), 0.0)
	require.LessOrEqual(s.PacketLoss(), 1.0)
	require.Greater(s.OutgoingBandwidth(), 0.0)
	require.Zero(s.IncomingBandwidth())

	s.Reset()
	require.Zero(s.PacketLoss())
	require.Zero(s.NextSequence())
	require.Equal(Counters{}, s.Counters())
}

func TestNewRequiresSendFunc(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	require.ErrorIs(t, err, ErrNoSendFunc)
}

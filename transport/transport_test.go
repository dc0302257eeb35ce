package transport

import (
	"errors"
	"testing"

	"github.com/jxsl13/gamenet/ack"
	"github.com/stretchr/testify/require"
)

type link struct {
	queue [][]byte
	sent  int
	drop  func(n int) bool
}

func (l *link) send(data []byte) error {
	l.sent++
	if l.drop != nil && l.drop(l.sent) {
		return nil
	}
	l.queue = append(l.queue, append([]byte(nil), data...))
	return nil
}

func (l *link) deliver(t *testing.T, to *Transport) {
	queue := l.queue
	l.queue = nil
	for _, data := range queue {
		// refused reliable fragments are resent by the peer
		if err := to.ProcessPacket(data); !errors.Is(err, ErrReceiveQueueFull) {
			require.NoError(t, err)
		}
	}
}

type pair struct {
	a, b   *Transport
	ab, ba *link
}

func newPair(t *testing.T, cfg Config) *pair {
	p := &pair{ab: &link{}, ba: &link{}}
	var err error
	p.a, err = New(cfg, p.ab.send)
	require.NoError(t, err)
	p.b, err = New(cfg, p.ba.send)
	require.NoError(t, err)
	return p
}

func (p *pair) step(t *testing.T, dt float64) {
	require.NoError(t, p.a.Update(dt))
	require.NoError(t, p.b.Update(dt))
	p.ab.deliver(t, p.b)
	p.ba.deliver(t, p.a)
}

func payload(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func drain(receive func() ([]byte, bool)) [][]byte {
	var out [][]byte
	for {
		data, ok := receive()
		if !ok {
			return out
		}
		out = append(out, data)
	}
}

func TestRoundTrip(t *testing.T) {
	fs := DefaultConfig().FragmentSize
	sizes := []int{1, fs - 1, fs, fs + 1, 10 * fs}

	for _, reliable := range []bool{true, false} {
		for _, size := range sizes {
			require := require.New(t)
			p := newPair(t, DefaultConfig())
			data := payload(size)
			require.NoError(p.a.Send(data, reliable))

			var got [][]byte
			for i := 0; i < 100; i++ {
				p.step(t, 0.01)
				if reliable {
					got = append(got, drain(p.b.ReceiveReliable)...)
				} else {
					got = append(got, drain(p.b.ReceiveUnreliable)...)
				}
			}

			require.Lenf(got, 1, "size %d reliable %t", size, reliable)
			require.Equal(data, got[0])
			if reliable {
				require.Zero(p.a.UnackedFragments())
			}
		}
	}
}

func TestReliableOrder(t *testing.T) {
	require := require.New(t)
	p := newPair(t, DefaultConfig())

	sizes := []int{3000, 1, 1100, 5000, 7}
	for _, size := range sizes {
		require.NoError(p.a.Send(payload(size), true))
	}
	require.Equal(3+1+1+5+1, p.a.UnackedFragments())

	var got [][]byte
	for i := 0; i < 200 && len(got) < len(sizes); i++ {
		p.step(t, 0.01)
		got = append(got, drain(p.b.ReceiveReliable)...)
	}
	require.Len(got, len(sizes))
	for i, size := range sizes {
		require.Equal(payload(size), got[i])
	}
}

func TestRetryUnderLoss(t *testing.T) {
	require := require.New(t)
	p := newPair(t, DefaultConfig())
	p.ab.drop = func(n int) bool { return n%2 == 1 }

	data := payload(3*DefaultConfig().FragmentSize + 10)
	require.NoError(p.a.Send(data, true))

	var got [][]byte
	ticks := 0
	for ; ticks < 500 && p.a.UnackedFragments() > 0; ticks++ {
		p.step(t, 0.05)
		got = append(got, drain(p.b.ReceiveReliable)...)
	}
	require.Zero(p.a.UnackedFragments())
	require.Less(ticks, 500)
	require.Len(got, 1)
	require.Equal(data, got[0])
	require.NotZero(p.a.Counters().FragmentsResent)
}

func TestLostAcksDoNotDuplicate(t *testing.T) {
	require := require.New(t)
	p := newPair(t, DefaultConfig())
	p.ba.drop = func(n int) bool { return n <= 5 }

	require.NoError(p.a.Send(payload(2500), true))
	require.NoError(p.a.Send(payload(10), true))

	var got [][]byte
	for i := 0; i < 500 && p.a.UnackedFragments() > 0; i++ {
		p.step(t, 0.05)
		got = append(got, drain(p.b.ReceiveReliable)...)
	}
	for i := 0; i < 20; i++ {
		p.step(t, 0.05)
		got = append(got, drain(p.b.ReceiveReliable)...)
	}

	require.Zero(p.a.UnackedFragments())
	require.Len(got, 2)
	require.Equal(payload(2500), got[0])
	require.Equal(payload(10), got[1])
	require.NotZero(p.b.Counters().FragmentsStale)
}

func TestFreePacketReusesBuffer(t *testing.T) {
	require := require.New(t)
	p := newPair(t, DefaultConfig())

	require.NoError(p.a.Send([]byte("first"), false))
	p.step(t, 0.01)
	first, ok := p.b.ReceiveUnreliable()
	require.True(ok)
	require.Equal([]byte("first"), first)
	p.b.FreePacket(first)

	require.NoError(p.a.Send([]byte("second"), true))
	p.step(t, 0.01)
	second, ok := p.b.ReceiveReliable()
	require.True(ok)
	require.Equal([]byte("second"), second)
	require.Same(&first[:1][0], &second[:1][0])
}

func TestFullReceiveQueueDefersReliablePackets(t *testing.T) {
	require := require.New(t)
	cfg := DefaultConfig()
	// grows once to room for 2 packets
	cfg.ReceiveQueueCapacity = 1
	p := newPair(t, cfg)

	for i := 0; i < 3; i++ {
		require.NoError(p.a.Send(payload(10+i), true))
	}
	for i := 0; i < 50; i++ {
		p.step(t, 0.05)
	}
	require.Equal(1, p.a.UnackedFragments())
	require.NotZero(p.b.Counters().FragmentsDeferred)

	got := drain(p.b.ReceiveReliable)
	for i := 0; i < 50 && p.a.UnackedFragments() > 0; i++ {
		p.step(t, 0.05)
		got = append(got, drain(p.b.ReceiveReliable)...)
	}

	require.Zero(p.a.UnackedFragments())
	require.Len(got, 3)
	for i, data := range got {
		require.Equal(payload(10+i), data)
	}
	require.Zero(p.b.Counters().PacketsDropped)
}

func TestSendErrors(t *testing.T) {
	require := require.New(t)
	cfg := DefaultConfig()
	cfg.SendQueueCapacity = 1
	cfg.MaxPacketSize = 4096
	p := newPair(t, cfg)

	require.ErrorIs(p.a.Send(nil, true), ErrEmptyPacket)
	require.ErrorIs(p.a.Send(payload(4097), false), ErrPacketTooLarge)

	// the queue grows once
	require.NoError(p.a.Send(payload(10), true))
	require.NoError(p.a.Send(payload(10), true))
	require.ErrorIs(p.a.Send(payload(10), true), ErrSendQueueFull)
}

func TestProcessPacketErrors(t *testing.T) {
	var datagram []byte
	sender, err := ack.New(ack.DefaultConfig(), func(data []byte) error {
		datagram = append([]byte(nil), data...)
		return nil
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		fragment []byte
	}{
		{"short header", []byte{1, 0, 0}},
		{"unknown lane", []byte{5, 0, 0, 1, 0, 0, 0, 1, 0, 42}},
		{"zero count", []byte{0, 0, 0, 0, 0, 0, 0, 1, 0, 42}},
		{"index out of range", []byte{0, 0, 0, 1, 0, 1, 0, 1, 0, 42}},
		{"size mismatch", []byte{0, 0, 0, 1, 0, 0, 0, 2, 0, 42}},
		{"short inner fragment", []byte{0, 0, 0, 2, 0, 0, 0, 1, 0, 42}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require := require.New(t)
			tr, err := New(DefaultConfig(), func([]byte) error { return nil })
			require.NoError(err)

			_, err = sender.SendPacket(tc.fragment)
			require.NoError(err)
			require.ErrorIs(tr.ProcessPacket(datagram), ErrMalformedFragment)
			require.Equal(uint64(1), tr.Counters().FragmentsInvalid)
		})
	}
}

func TestNewInvalidConfig(t *testing.T) {
	send := func([]byte) error { return nil }

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero fragment size", func(c *Config) { c.FragmentSize = 0 }},
		{"fragment does not fit", func(c *Config) { c.FragmentSize = 1200 }},
		{"zero fragments in flight", func(c *Config) { c.MaxFragmentsInFlight = 0 }},
		{"zero queue", func(c *Config) { c.SendQueueCapacity = 0 }},
		{"negative resend", func(c *Config) { c.ResendInterval = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			_, err := New(cfg, send)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := New(DefaultConfig(), nil)
	require.ErrorIs(t, err, ack.ErrNoSendFunc)
}

func TestReset(t *testing.T) {
	require := require.New(t)
	p := newPair(t, DefaultConfig())

	require.NoError(p.a.Send(payload(5000), true))
	require.NotZero(p.a.UnackedFragments())

	p.a.Reset()
	require.Zero(p.a.UnackedFragments())
	require.Zero(p.a.Counters())
	require.Equal(uint16(0), p.a.Ack().NextSequence())
}

package network

import (
	"math/rand"
	"sort"
)

// SimulatorConfig describes the network conditions a Simulator imposes on
// outgoing datagrams. Durations are in seconds, chances between 0 and 1.
type SimulatorConfig struct {
	Latency         float64
	Jitter          float64
	DropChance      float64
	DuplicateChance float64

	// Seed makes the random decisions reproducible.
	Seed int64

	// Drop, if set, replaces DropChance with a deterministic decision.
	Drop func(to Endpoint, data []byte) bool
}

type delayedDatagram struct {
	deliverAt float64
	order     uint64
	to        Endpoint
	data      []byte
}

// Simulator wraps a Transport and delays, drops and duplicates outgoing
// datagrams. It keeps its own clock which is advanced by Update.
type Simulator struct {
	inner Transport
	cfg   SimulatorConfig
	rng   *rand.Rand

	time    float64
	order   uint64
	pending []delayedDatagram

	dropped    uint64
	duplicated uint64
}

func NewSimulator(inner Transport, cfg SimulatorConfig) *Simulator {
	return &Simulator{
		inner: inner,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
}

// SimulatorFactory wraps every transport the factory opens into a Simulator.
func SimulatorFactory(f Factory, cfg SimulatorConfig) Factory {
	return func(server Endpoint) (Transport, error) {
		t, err := f(server)
		if err != nil {
			return nil, err
		}
		return NewSimulator(t, cfg), nil
	}
}

// SimulatorListener wraps the transport the listener opens into a Simulator.
func SimulatorListener(l Listener, cfg SimulatorConfig) Listener {
	return func(bind Endpoint) (Transport, error) {
		t, err := l(bind)
		if err != nil {
			return nil, err
		}
		return NewSimulator(t, cfg), nil
	}
}

func (s *Simulator) LocalEndpoint() Endpoint {
	return s.inner.LocalEndpoint()
}

func (s *Simulator) ReceiveFrom(buf []byte) (int, Endpoint, error) {
	return s.inner.ReceiveFrom(buf)
}

func (s *Simulator) Close() error {
	s.pending = nil
	return s.inner.Close()
}

// Dropped is the number of datagrams the simulator discarded.
func (s *Simulator) Dropped() uint64 {
	return s.dropped
}

// Duplicated is the number of extra copies the simulator produced.
func (s *Simulator) Duplicated() uint64 {
	return s.duplicated
}

func (s *Simulator) drop(to Endpoint, data []byte) bool {
	if s.cfg.Drop != nil {
		return s.cfg.Drop(to, data)
	}
	return s.cfg.DropChance > 0 && s.rng.Float64() < s.cfg.DropChance
}

func (s *Simulator) delay() float64 {
	d := s.cfg.Latency
	if s.cfg.Jitter > 0 {
		d += (s.rng.Float64()*2 - 1) * s.cfg.Jitter
	}
	return max(0, d)
}

func (s *Simulator) SendTo(to Endpoint, data []byte) error {
	if s.drop(to, data) {
		s.dropped++
		return nil
	}

	copies := 1
	if s.cfg.DuplicateChance > 0 && s.rng.Float64() < s.cfg.DuplicateChance {
		copies++
		s.duplicated++
	}

	for i := 0; i < copies; i++ {
		d := s.delay()
		if d == 0 && len(s.pending) == 0 {
			if err := s.inner.SendTo(to, data); err != nil {
				return err
			}
			continue
		}

		buf := make([]byte, len(data))
		copy(buf, data)
		s.pending = append(s.pending, delayedDatagram{
			deliverAt: s.time + d,
			order:     s.order,
			to:        to,
			data:      buf,
		})
		s.order++
	}
	return nil
}

// Update advances the simulator clock and sends every datagram that is due.
func (s *Simulator) Update(dt float64) {
	s.time += dt
	if len(s.pending) == 0 {
		return
	}

	sort.SliceStable(s.pending, func(i, j int) bool {
		if s.pending[i].deliverAt == s.pending[j].deliverAt {
			return s.pending[i].order < s.pending[j].order
		}
		return s.pending[i].deliverAt < s.pending[j].deliverAt
	})

	sent := 0
	for _, dg := range s.pending {
		if dg.deliverAt > s.time {
			break
		}
		// delivery errors are indistinguishable from loss
		_ = s.inner.SendTo(dg.to, dg.data)
		sent++
	}
	s.pending = append(s.pending[:0], s.pending[sent:]...)
}

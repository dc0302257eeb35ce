package transport

import (
	"fmt"

	"github.com/jxsl13/gamenet/ack"
	"github.com/jxsl13/gamenet/protocol"
)

type Config struct {
	// FragmentSize is the payload size of every fragment but the last one.
	// Both peers must use the same value.
	FragmentSize int

	// MaxPacketSize is the biggest packet Send accepts.
	MaxPacketSize int

	MaxFragmentsInFlight int
	SendQueueCapacity    int
	ReassemblyCapacity   int
	ReceiveQueueCapacity int

	// ResendInterval is the number of seconds after which an unacknowledged
	// reliable fragment is sent again.
	ResendInterval float64

	Ack ack.Config
}

func DefaultConfig() Config {
	return Config{
		FragmentSize:         protocol.DefaultFragmentSize,
		MaxPacketSize:        protocol.DefaultMaxPacketSize,
		MaxFragmentsInFlight: protocol.DefaultMaxFragmentsInFlight,
		SendQueueCapacity:    protocol.DefaultSendQueueCapacity,
		ReassemblyCapacity:   protocol.DefaultReassemblyCapacity,
		ReceiveQueueCapacity: protocol.DefaultReceiveQueueCapacity,
		ResendInterval:       protocol.DefaultResendInterval,
		Ack:                  ack.DefaultConfig(),
	}
}

// maxFragments is the fragment count limit of the 16 bit fragment header fields.
const maxFragments = 1<<16 - 1

func (c Config) validate() error {
	switch {
	case c.FragmentSize < 1 || c.FragmentSize > protocol.MaxFragmentSize:
		return fmt.Errorf("%w: fragment size %d must be between 1 and %d", ErrInvalidConfig, c.FragmentSize, protocol.MaxFragmentSize)
	case c.Ack.MaxPacketSize < protocol.FragmentHeaderSize+c.FragmentSize:
		return fmt.Errorf("%w: ack max packet size %d is smaller than a fragment", ErrInvalidConfig, c.Ack.MaxPacketSize)
	case c.MaxPacketSize < 1 || (c.MaxPacketSize+c.FragmentSize-1)/c.FragmentSize > maxFragments:
		return fmt.Errorf("%w: max packet size %d", ErrInvalidConfig, c.MaxPacketSize)
	case c.MaxFragmentsInFlight < 1:
		return fmt.Errorf("%w: max fragments in flight %d", ErrInvalidConfig, c.MaxFragmentsInFlight)
	case c.SendQueueCapacity < 1, c.ReassemblyCapacity < 1, c.ReceiveQueueCapacity < 1:
		return fmt.Errorf("%w: queue capacities must be positive", ErrInvalidConfig)
	case c.ResendInterval < 0:
		return fmt.Errorf("%w: resend interval %f", ErrInvalidConfig, c.ResendInterval)
	}
	return nil
}

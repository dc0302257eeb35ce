package protocol

const (
	// sequence, ack, ack bits, payload size
	AckHeaderSize = 2 + 2 + 4 + 2
	AckBitsCount  = 32

	DefaultAckCapacity = 256

	// lane, reassembly sequence, fragment count, fragment index, fragment size
	FragmentHeaderSize = 1 + 2 + 2 + 2 + 2

	LaneUnreliable uint8 = 0
	LaneReliable   uint8 = 1

	DefaultFragmentSize         = 1100
	DefaultMaxPacketSize        = 1 << 20
	DefaultMaxFragmentsInFlight = 8
	DefaultSendQueueCapacity    = 64
	DefaultReassemblyCapacity   = 32
	DefaultReceiveQueueCapacity = 256

	// seconds
	DefaultResendInterval = 0.1

	// MaxFragmentSize is the biggest fragment that still fits into a single Payload packet.
	MaxFragmentSize = NetMaxPayloadSize - AckHeaderSize - FragmentHeaderSize
)

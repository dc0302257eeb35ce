package protocol

const (
	PacketTypeConnectToken       PacketType = 0
	PacketTypeConnectionAccepted PacketType = 1
	PacketTypeConnectionDenied   PacketType = 2
	PacketTypeKeepalive          PacketType = 3
	PacketTypeDisconnect         PacketType = 4
	PacketTypeChallengeRequest   PacketType = 5
	PacketTypeChallengeResponse  PacketType = 6
	PacketTypePayload            PacketType = 7

	// first invalid packet type
	PacketTypeCount PacketType = 8
)

// PacketType is the first byte of every datagram.
type PacketType uint8

func (t PacketType) IsValid() bool {
	return t < PacketTypeCount
}

func (t PacketType) String() string {
	switch t {
	case PacketTypeConnectToken:
		return "connect token"
	case PacketTypeConnectionAccepted:
		return "connection accepted"
	case PacketTypeConnectionDenied:
		return "connection denied"
	case PacketTypeKeepalive:
		return "keepalive"
	case PacketTypeDisconnect:
		return "disconnect"
	case PacketTypeChallengeRequest:
		return "challenge request"
	case PacketTypeChallengeResponse:
		return "challenge response"
	case PacketTypePayload:
		return "payload"
	default:
		return "invalid"
	}
}

const (
	// NetMaxPacketSize is the biggest datagram that is ever sent or accepted.
	NetMaxPacketSize = 1200

	// type + sequence
	NetPacketHeaderSize = 1 + 8

	// NetMaxPayloadSize is the biggest application payload a single
	// Payload packet can carry (header, size prefix and AEAD tag excluded).
	NetMaxPayloadSize = NetMaxPacketSize - NetPacketHeaderSize - AEADOverhead - 2

	ConnectionAcceptedSize = 8 + 4 + 4
	ChallengeDataSize      = 256
	ChallengeSize          = 8 + ChallengeDataSize
)

// Package packet implements the datagram framing of the connection protocol.
//
// Every packet except the connect token starts with its type and an 8 byte
// sequence number, followed by the AEAD sealed body. The sequence number is
// the AEAD message id, so a ciphertext is bound to the sequence it was sent with.
package packet

import (
	"fmt"

	"github.com/jxsl13/gamenet/protocol"
)

// Packet is one of ConnectToken, ConnectionAccepted, ConnectionDenied,
// Keepalive, Disconnect, ChallengeRequest, ChallengeResponse and Payload.
type Packet interface {
	Type() protocol.PacketType
}

// ConnectToken is the connect token packet a client sends to a server.
// It is not encrypted by the framing, the token carries its own protection.
type ConnectToken struct {
	Data []byte
}

type ConnectionAccepted struct {
	ClientID          uint64
	MaxClients        uint32
	ConnectionTimeout uint32
}

type ConnectionDenied struct{}

type Keepalive struct{}

type Disconnect struct{}

// ChallengeRequest carries the nonce and random data the client must echo.
type ChallengeRequest struct {
	Nonce uint64
	Data  [protocol.ChallengeDataSize]byte
}

type ChallengeResponse struct {
	Nonce uint64
	Data  [protocol.ChallengeDataSize]byte
}

// Payload is application data. After Read, Data aliases the read buffer.
type Payload struct {
	Data []byte
}

func (ConnectToken) Type() protocol.PacketType       { return protocol.PacketTypeConnectToken }
func (ConnectionAccepted) Type() protocol.PacketType { return protocol.PacketTypeConnectionAccepted }
func (ConnectionDenied) Type() protocol.PacketType   { return protocol.PacketTypeConnectionDenied }
func (Keepalive) Type() protocol.PacketType          { return protocol.PacketTypeKeepalive }
func (Disconnect) Type() protocol.PacketType         { return protocol.PacketTypeDisconnect }
func (ChallengeRequest) Type() protocol.PacketType   { return protocol.PacketTypeChallengeRequest }
func (ChallengeResponse) Type() protocol.PacketType  { return protocol.PacketTypeChallengeResponse }
func (Payload) Type() protocol.PacketType            { return protocol.PacketTypePayload }

// TypeSet is a set of packet types a receiver is willing to accept.
type TypeSet uint16

func NewTypeSet(types ...protocol.PacketType) TypeSet {
	var s TypeSet
	for _, t := range types {
		if t.IsValid() {
			s |= 1 << t
		}
	}
	return s
}

func (s TypeSet) Has(t protocol.PacketType) bool {
	return t.IsValid() && s&(1<<t) != 0
}

var (
	// ClientTypes are the packets a client accepts from a server.
	ClientTypes = NewTypeSet(
		protocol.PacketTypeConnectionAccepted,
		protocol.PacketTypeConnectionDenied,
		protocol.PacketTypeKeepalive,
		protocol.PacketTypeDisconnect,
		protocol.PacketTypeChallengeRequest,
		protocol.PacketTypePayload,
	)

	// ServerTypes are the packets a server accepts from a client.
	ServerTypes = NewTypeSet(
		protocol.PacketTypeConnectToken,
		protocol.PacketTypeKeepalive,
		protocol.PacketTypeDisconnect,
		protocol.PacketTypeChallengeResponse,
		protocol.PacketTypePayload,
	)
)

// bodySize returns the plaintext body size bounds of a packet type.
func bodySize(t protocol.PacketType) (min, max int) {
	switch t {
	case protocol.PacketTypeConnectionAccepted:
		return protocol.ConnectionAcceptedSize, protocol.ConnectionAcceptedSize
	case protocol.PacketTypeConnectionDenied, protocol.PacketTypeKeepalive, protocol.PacketTypeDisconnect:
		return 0, 0
	case protocol.PacketTypeChallengeRequest, protocol.PacketTypeChallengeResponse:
		return protocol.ChallengeSize, protocol.ChallengeSize
	case protocol.PacketTypePayload:
		return 2 + 1, 2 + protocol.NetMaxPayloadSize
	default:
		panic(fmt.Sprintf("packet type without body: %s", t))
	}
}

package packet

import (
	"errors"
	"fmt"

	"github.com/jxsl13/gamenet/crypt"
	"github.com/jxsl13/gamenet/protocol"
	"github.com/jxsl13/gamenet/wire"
)

// ErrInvalidPacket is returned for every datagram that is rejected.
// The wrapped text is a local diagnostic only.
var ErrInvalidPacket = errors.New("invalid packet")

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidPacket, reason)
}

// PeekType returns the type of a datagram without validating anything else.
func PeekType(data []byte) (protocol.PacketType, bool) {
	if len(data) == 0 {
		return 0, false
	}
	t := protocol.PacketType(data[0])
	return t, t.IsValid()
}

// Read validates and decodes a datagram.
// Only packet types in allowed are accepted. Encrypted packets are opened with
// key in place, so data is modified. If replay is not nil, packets whose
// sequence was already seen are rejected and the sequence of every accepted
// packet is recorded.
// The returned ConnectToken and Payload alias data.
func Read(data []byte, allowed TypeSet, key *crypt.Key, appID uint64, replay *ReplayBuffer) (Packet, uint64, error) {
	t, ok := PeekType(data)
	if !ok {
		return nil, 0, invalid("unknown type")
	}
	if !allowed.Has(t) {
		return nil, 0, invalid("unexpected " + t.String())
	}

	if t == protocol.PacketTypeConnectToken {
		if len(data) != protocol.ConnectTokenPacketSize {
			return nil, 0, invalid("connect token size")
		}
		return ConnectToken{Data: data}, 0, nil
	}

	if key == nil {
		return nil, 0, invalid("no key")
	}
	if len(data) < protocol.NetPacketHeaderSize+crypt.Overhead {
		return nil, 0, invalid("too short")
	}

	u := wire.NewUnpacker(data[1:protocol.NetPacketHeaderSize])
	seq, err := u.NextUint64()
	if err != nil {
		return nil, 0, invalid("sequence")
	}

	if replay != nil && replay.AlreadyReceived(seq) {
		return nil, 0, invalid("replayed")
	}

	minSize, maxSize := bodySize(t)
	bodyLen := len(data) - protocol.NetPacketHeaderSize - crypt.Overhead
	if bodyLen < minSize || bodyLen > maxSize {
		return nil, 0, invalid("size")
	}

	ad := associatedData(appID, t)
	sealed := data[protocol.NetPacketHeaderSize:]
	body, err := crypt.Open(key, seq, ad[:], sealed, sealed[:0])
	if err != nil {
		return nil, 0, invalid("decryption")
	}

	p, err := decode(t, body)
	if err != nil {
		return nil, 0, err
	}

	if replay != nil {
		replay.Update(seq)
	}
	return p, seq, nil
}

func decode(t protocol.PacketType, body []byte) (Packet, error) {
	u := wire.NewUnpacker(body)
	switch t {
	case protocol.PacketTypeConnectionAccepted:
		var (
			p   ConnectionAccepted
			err error
		)
		p.ClientID, err = u.NextUint64()
		if err != nil {
			return nil, invalid("accepted client id")
		}
		p.MaxClients, err = u.NextUint32()
		if err != nil {
			return nil, invalid("accepted max clients")
		}
		p.ConnectionTimeout, err = u.NextUint32()
		if err != nil {
			return nil, invalid("accepted timeout")
		}
		return p, nil
	case protocol.PacketTypeConnectionDenied:
		return ConnectionDenied{}, nil
	case protocol.PacketTypeKeepalive:
		return Keepalive{}, nil
	case protocol.PacketTypeDisconnect:
		return Disconnect{}, nil
	case protocol.PacketTypeChallengeRequest:
		var p ChallengeRequest
		nonce, err := u.NextUint64()
		if err != nil || u.NextInto(p.Data[:]) != nil {
			return nil, invalid("challenge request")
		}
		p.Nonce = nonce
		return p, nil
	case protocol.PacketTypeChallengeResponse:
		var p ChallengeResponse
		nonce, err := u.NextUint64()
		if err != nil || u.NextInto(p.Data[:]) != nil {
			return nil, invalid("challenge response")
		}
		p.Nonce = nonce
		return p, nil
	case protocol.PacketTypePayload:
		size, err := u.NextUint16()
		if err != nil || int(size) != u.RemainingSize() || size == 0 {
			return nil, invalid("payload size")
		}
		return Payload{Data: u.Remaining()}, nil
	default:
		return nil, invalid("unknown type")
	}
}

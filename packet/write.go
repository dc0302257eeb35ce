package packet

import (
	"errors"
	"fmt"

	"github.com/jxsl13/gamenet/crypt"
	"github.com/jxsl13/gamenet/protocol"
	"github.com/jxsl13/gamenet/wire"
)

var (
	ErrPayloadSize    = fmt.Errorf("payload size must be between 1 and %d bytes", protocol.NetMaxPayloadSize)
	ErrTokenSize      = fmt.Errorf("connect token packet must have %d bytes", protocol.ConnectTokenPacketSize)
	ErrUnknownPacket  = errors.New("unknown packet")
	ErrMissingKey     = errors.New("missing encryption key")
	ErrBufferTooSmall = wire.ErrBufferTooSmall
)

func associatedData(appID uint64, t protocol.PacketType) [protocol.VersionSize + 8 + 1]byte {
	var ad [protocol.VersionSize + 8 + 1]byte
	p := wire.NewPacker(ad[:])
	p.AddBytes([]byte(protocol.VersionString))
	p.AddUint64(appID)
	p.AddUint8(uint8(t))
	return ad
}

// Write serializes p into buf and returns the number of written bytes.
// Every packet but ConnectToken is sealed with key under sequence seq.
func Write(buf []byte, p Packet, seq uint64, key *crypt.Key, appID uint64) (int, error) {
	p = deref(p)
	if ct, ok := p.(ConnectToken); ok {
		if len(ct.Data) != protocol.ConnectTokenPacketSize {
			return 0, ErrTokenSize
		}
		if len(buf) < len(ct.Data) {
			return 0, fmt.Errorf("failed to write connect token: %w", ErrBufferTooSmall)
		}
		return copy(buf, ct.Data), nil
	}
	if key == nil {
		return 0, ErrMissingKey
	}

	pk := wire.NewPacker(buf)
	pk.AddUint8(uint8(p.Type()))
	pk.AddUint64(seq)

	switch v := p.(type) {
	case ConnectionAccepted:
		pk.AddUint64(v.ClientID)
		pk.AddUint32(v.MaxClients)
		pk.AddUint32(v.ConnectionTimeout)
	case ConnectionDenied, Keepalive, Disconnect:
	case ChallengeRequest:
		pk.AddUint64(v.Nonce)
		pk.AddBytes(v.Data[:])
	case ChallengeResponse:
		pk.AddUint64(v.Nonce)
		pk.AddBytes(v.Data[:])
	case Payload:
		if len(v.Data) < 1 || len(v.Data) > protocol.NetMaxPayloadSize {
			return 0, fmt.Errorf("failed to write payload: %w: %d", ErrPayloadSize, len(v.Data))
		}
		pk.AddUint16(uint16(len(v.Data)))
		pk.AddBytes(v.Data)
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnknownPacket, p)
	}
	if err := pk.Err(); err != nil {
		return 0, fmt.Errorf("failed to write %s packet: %w", p.Type(), err)
	}

	end := pk.Size()
	if len(buf)-end < crypt.Overhead {
		return 0, fmt.Errorf("failed to write %s packet: %w", p.Type(), ErrBufferTooSmall)
	}

	ad := associatedData(appID, p.Type())
	body := buf[protocol.NetPacketHeaderSize:end]
	sealed, err := crypt.Seal(key, seq, ad[:], body, body[:0])
	if err != nil {
		return 0, fmt.Errorf("failed to write %s packet: %w", p.Type(), err)
	}
	return protocol.NetPacketHeaderSize + len(sealed), nil
}

func deref(p Packet) Packet {
	switch v := p.(type) {
	case *ConnectToken:
		return *v
	case *ConnectionAccepted:
		return *v
	case *ConnectionDenied:
		return *v
	case *Keepalive:
		return *v
	case *Disconnect:
		return *v
	case *ChallengeRequest:
		return *v
	case *ChallengeResponse:
		return *v
	case *Payload:
		return *v
	default:
		return p
	}
}

package token

import (
	"bytes"

	"github.com/jxsl13/gamenet/crypt"
	"github.com/jxsl13/gamenet/network"
	"github.com/jxsl13/gamenet/protocol"
	"github.com/jxsl13/gamenet/wire"
)

// ClientToken is what a client learns from its connect token.
type ClientToken struct {
	ApplicationID    uint64
	CreationTime     uint64
	ExpirationTime   uint64
	HandshakeTimeout uint32

	ClientToServerKey crypt.Key
	ServerToClientKey crypt.Key

	Endpoints []network.Endpoint

	// Packet is sent to the servers as is.
	Packet [protocol.ConnectTokenPacketSize]byte
}

// Expired reports whether the token is no longer valid at now.
func (t *ClientToken) Expired(now uint64) bool {
	return t.ExpirationTime <= now
}

// ExtractClient strips the rest and public section of a connect token.
// It fails with ErrTokenExpired if the token expired at now
// and with ErrInvalidToken for anything else.
func ExtractClient(connectToken []byte, appID, now uint64) (*ClientToken, error) {
	if len(connectToken) != protocol.ConnectTokenSize {
		return nil, ErrInvalidToken
	}

	var t ClientToken

	u := wire.NewUnpacker(connectToken[:publicOffset])
	version, err := u.NextBytes(protocol.VersionSize)
	if err != nil || !bytes.Equal(version, []byte(protocol.VersionString)) {
		return nil, ErrInvalidToken
	}
	t.ApplicationID, err = u.NextUint64()
	if err != nil || t.ApplicationID != appID {
		return nil, ErrInvalidToken
	}
	t.CreationTime, err = u.NextUint64()
	if err != nil {
		return nil, ErrInvalidToken
	}
	if u.NextInto(t.ClientToServerKey[:]) != nil || u.NextInto(t.ServerToClientKey[:]) != nil {
		return nil, ErrInvalidToken
	}

	pkt := connectToken[publicOffset:]
	pub, err := readPublic(pkt, appID, now)
	if err != nil {
		return nil, err
	}

	t.ExpirationTime = pub.ExpirationTime
	t.HandshakeTimeout = pub.HandshakeTimeout
	t.Endpoints = pub.Endpoints
	copy(t.Packet[:], pkt)
	return &t, nil
}

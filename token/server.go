package token

import (
	"github.com/jxsl13/gamenet/crypt"
	"github.com/jxsl13/gamenet/network"
	"github.com/jxsl13/gamenet/protocol"
	"github.com/jxsl13/gamenet/wire"
)

// ServerToken is the decrypted content of a connect token packet.
type ServerToken struct {
	ExpirationTime   uint64
	HandshakeTimeout uint32
	Endpoints        []network.Endpoint

	ClientID          uint64
	ClientToServerKey crypt.Key
	ServerToClientKey crypt.Key
	UserData          [protocol.UserDataSize]byte

	// Signature identifies the token, a second redemption is rejected by it.
	Signature crypt.Signature
}

// HasEndpoint reports whether ep is one of the token's server endpoints.
func (t *ServerToken) HasEndpoint(ep network.Endpoint) bool {
	for _, e := range t.Endpoints {
		if e == ep {
			return true
		}
	}
	return false
}

// DecryptServer validates a connect token packet and opens its secret section.
// pk verifies the authority's signature, secretKey opens the secret section.
// Signature and decryption failures both yield ErrInvalidToken.
func DecryptServer(packet []byte, pk crypt.PublicKey, secretKey crypt.Key, appID, now uint64) (*ServerToken, error) {
	if len(packet) != protocol.ConnectTokenPacketSize {
		return nil, ErrInvalidToken
	}

	pub, err := readPublic(packet, appID, now)
	if err != nil {
		return nil, err
	}

	if !crypt.Verify(pk, packet[:sigOffset], packet[sigOffset:]) {
		return nil, ErrInvalidToken
	}

	ad := associatedData(appID, pub.ExpirationTime)
	var plainBuf [protocol.SecretSectionPlaintextSize]byte
	plain, err := crypt.Open(&secretKey, 0, ad[:], packet[secretOffset:sigOffset], plainBuf[:0])
	if err != nil {
		return nil, ErrInvalidToken
	}

	u := wire.NewUnpacker(plain)
	zeros, err := u.NextBytes(protocol.SecretZeroRegionSize)
	if err != nil {
		return nil, ErrInvalidToken
	}
	for _, b := range zeros {
		if b != 0 {
			return nil, ErrInvalidToken
		}
	}

	t := ServerToken{
		ExpirationTime:   pub.ExpirationTime,
		HandshakeTimeout: pub.HandshakeTimeout,
		Endpoints:        pub.Endpoints,
	}
	t.ClientID, err = u.NextUint64()
	if err != nil ||
		u.NextInto(t.ClientToServerKey[:]) != nil ||
		u.NextInto(t.ServerToClientKey[:]) != nil ||
		u.NextInto(t.UserData[:]) != nil {
		return nil, ErrInvalidToken
	}
	copy(t.Signature[:], packet[sigOffset:])
	return &t, nil
}

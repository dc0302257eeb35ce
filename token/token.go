// Package token implements connect tokens: credentials an authority issues
// out of band that bind a client id and two session keys to a list of server
// endpoints and an expiration time.
//
// Layout of the 1114 bytes:
//
//	rest section   (client only, cleartext) version, app id, creation time, c2s key, s2c key
//	public section (signed, cleartext)      type, version, app id, expiration, handshake timeout, endpoints, zero padding
//	secret section (signed, sealed)         zero region, client id, c2s key, s2c key, user data
//	signature                               over public and sealed secret section
//
// Everything after the rest section is the connect token packet the client
// sends to the servers verbatim.
package token

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jxsl13/gamenet/crypt"
	"github.com/jxsl13/gamenet/network"
	"github.com/jxsl13/gamenet/protocol"
	"github.com/jxsl13/gamenet/wire"
)

var (
	ErrInvalidEndpointCount = fmt.Errorf("endpoint count must be between 1 and %d", protocol.MaxTokenEndpoints)
	ErrEndpointsTooLarge    = errors.New("endpoints do not fit into the public section")
	ErrUserDataTooLarge     = fmt.Errorf("user data exceeds %d bytes", protocol.UserDataSize)

	// ErrInvalidToken is returned for every token that fails validation.
	// It deliberately does not tell which check failed.
	ErrInvalidToken = errors.New("forged or corrupt connect token")

	ErrTokenExpired = errors.New("connect token expired")
)

const (
	publicOffset = protocol.RestSectionSize
	secretOffset = protocol.PublicSectionSize
	sigOffset    = protocol.SignedSize
)

// Params describes the token an authority issues.
type Params struct {
	ApplicationID uint64

	// unix timestamps in seconds
	CreationTime   uint64
	ExpirationTime uint64

	// seconds a server may take to answer before the client moves on
	HandshakeTimeout uint32

	ClientToServerKey crypt.Key
	ServerToClientKey crypt.Key

	// 1..32 endpoints as ip:port or [ipv6]:port
	Endpoints []string

	ClientID uint64

	// up to 256 bytes, zero padded
	UserData []byte
}

// Generate creates a connect token. signingKey signs it, secretKey seals the
// secret section and must be shared with every server the token is for.
func Generate(params Params, signingKey crypt.SecretKey, secretKey crypt.Key) ([]byte, error) {
	if len(params.Endpoints) < 1 || len(params.Endpoints) > protocol.MaxTokenEndpoints {
		return nil, fmt.Errorf("failed to generate connect token: %w: %d", ErrInvalidEndpointCount, len(params.Endpoints))
	}
	if len(params.UserData) > protocol.UserDataSize {
		return nil, fmt.Errorf("failed to generate connect token: %w", ErrUserDataTooLarge)
	}

	endpoints := make([]network.Endpoint, 0, len(params.Endpoints))
	for _, s := range params.Endpoints {
		ep, err := network.ParseEndpoint(s)
		if err != nil {
			return nil, fmt.Errorf("failed to generate connect token: %w", err)
		}
		endpoints = append(endpoints, ep)
	}

	buf := make([]byte, protocol.ConnectTokenSize)
	p := wire.NewPacker(buf)

	// rest section
	p.AddBytes([]byte(protocol.VersionString))
	p.AddUint64(params.ApplicationID)
	p.AddUint64(params.CreationTime)
	p.AddBytes(params.ClientToServerKey[:])
	p.AddBytes(params.ServerToClientKey[:])

	// public section
	p.AddUint8(uint8(protocol.PacketTypeConnectToken))
	p.AddBytes([]byte(protocol.VersionString))
	p.AddUint64(params.ApplicationID)
	p.AddUint64(params.ExpirationTime)
	p.AddUint32(params.HandshakeTimeout)
	p.AddUint32(uint32(len(endpoints)))
	for _, ep := range endpoints {
		if err := ep.Pack(p); err != nil {
			return nil, fmt.Errorf("failed to generate connect token: %w", err)
		}
	}
	if p.Size() > publicOffset+protocol.PublicSectionSize {
		return nil, fmt.Errorf("failed to generate connect token: %w", ErrEndpointsTooLarge)
	}
	p.PadTo(publicOffset + protocol.PublicSectionSize)
	if err := p.Err(); err != nil {
		return nil, fmt.Errorf("failed to generate connect token: %w", err)
	}

	// secret section
	var plain [protocol.SecretSectionPlaintextSize]byte
	sp := wire.NewPacker(plain[:])
	sp.AddZeros(protocol.SecretZeroRegionSize)
	sp.AddUint64(params.ClientID)
	sp.AddBytes(params.ClientToServerKey[:])
	sp.AddBytes(params.ServerToClientKey[:])
	sp.AddBytes(params.UserData)
	sp.PadTo(len(plain))
	if err := sp.Err(); err != nil {
		return nil, fmt.Errorf("failed to generate connect token: %w", err)
	}

	pkt := buf[publicOffset:]
	ad := associatedData(params.ApplicationID, params.ExpirationTime)
	sealed, err := crypt.Seal(&secretKey, 0, ad[:], plain[:], pkt[secretOffset:secretOffset])
	if err != nil {
		return nil, fmt.Errorf("failed to generate connect token: %w", err)
	}
	if len(sealed) != protocol.SecretSectionSize {
		return nil, fmt.Errorf("failed to generate connect token: sealed secret section has %d bytes", len(sealed))
	}

	sig := crypt.Sign(signingKey, pkt[:sigOffset])
	copy(pkt[sigOffset:], sig[:])
	return buf, nil
}

func associatedData(appID, expiration uint64) [protocol.VersionSize + 8 + 8]byte {
	var ad [protocol.VersionSize + 8 + 8]byte
	p := wire.NewPacker(ad[:])
	p.AddBytes([]byte(protocol.VersionString))
	p.AddUint64(appID)
	p.AddUint64(expiration)
	return ad
}

type publicSection struct {
	ExpirationTime   uint64
	HandshakeTimeout uint32
	Endpoints        []network.Endpoint
}

// readPublic validates and parses the public section at the start of a token packet.
func readPublic(pkt []byte, appID, now uint64) (publicSection, error) {
	var pub publicSection

	u := wire.NewUnpacker(pkt[:protocol.PublicSectionSize])
	typ, err := u.NextUint8()
	if err != nil || protocol.PacketType(typ) != protocol.PacketTypeConnectToken {
		return pub, ErrInvalidToken
	}

	version, err := u.NextBytes(protocol.VersionSize)
	if err != nil || !bytes.Equal(version, []byte(protocol.VersionString)) {
		return pub, ErrInvalidToken
	}

	tokenAppID, err := u.NextUint64()
	if err != nil || tokenAppID != appID {
		return pub, ErrInvalidToken
	}

	pub.ExpirationTime, err = u.NextUint64()
	if err != nil {
		return pub, ErrInvalidToken
	}
	if pub.ExpirationTime <= now {
		return pub, ErrTokenExpired
	}

	pub.HandshakeTimeout, err = u.NextUint32()
	if err != nil {
		return pub, ErrInvalidToken
	}

	count, err := u.NextUint32()
	if err != nil || count < 1 || count > protocol.MaxTokenEndpoints {
		return pub, ErrInvalidToken
	}

	pub.Endpoints = make([]network.Endpoint, 0, count)
	for i := uint32(0); i < count; i++ {
		ep, err := network.UnpackEndpoint(u)
		if err != nil {
			return pub, ErrInvalidToken
		}
		pub.Endpoints = append(pub.Endpoints, ep)
	}
	return pub, nil
}

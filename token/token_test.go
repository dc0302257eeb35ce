package token

import (
	"fmt"
	"testing"

	"github.com/jxsl13/gamenet/crypt"
	"github.com/jxsl13/gamenet/network"
	"github.com/jxsl13/gamenet/protocol"
	"github.com/stretchr/testify/require"
)

type authority struct {
	pk     crypt.PublicKey
	sk     crypt.SecretKey
	secret crypt.Key
}

func newAuthority(t *testing.T) authority {
	pk, sk, err := crypt.GenerateSigningKeys()
	require.NoError(t, err)
	secret, err := crypt.GenerateKey()
	require.NoError(t, err)
	return authority{pk: pk, sk: sk, secret: secret}
}

func newParams(t *testing.T, endpoints ...string) Params {
	c2s, err := crypt.GenerateKey()
	require.NoError(t, err)
	s2c, err := crypt.GenerateKey()
	require.NoError(t, err)
	return Params{
		ApplicationID:     100,
		CreationTime:      10,
		ExpirationTime:    70,
		HandshakeTimeout:  5,
		ClientToServerKey: c2s,
		ServerToClientKey: s2c,
		Endpoints:         endpoints,
		ClientID:          0xdeadbeef,
		UserData:          []byte("user data"),
	}
}

func TestGenerateExtractDecrypt(t *testing.T) {
	require := require.New(t)
	a := newAuthority(t)
	params := newParams(t, "[::1]:5000", "127.0.0.1:6000")

	data, err := Generate(params, a.sk, a.secret)
	require.NoError(err)
	require.Len(data, protocol.ConnectTokenSize)

	ct, err := ExtractClient(data, params.ApplicationID, 20)
	require.NoError(err)
	require.Equal(params.ApplicationID, ct.ApplicationID)
	require.Equal(params.CreationTime, ct.CreationTime)
	require.Equal(params.ExpirationTime, ct.ExpirationTime)
	require.Equal(params.HandshakeTimeout, ct.HandshakeTimeout)
	require.Equal(params.ClientToServerKey, ct.ClientToServerKey)
	require.Equal(params.ServerToClientKey, ct.ServerToClientKey)
	require.Equal([]network.Endpoint{
		network.MustParseEndpoint("[::1]:5000"),
		network.MustParseEndpoint("127.0.0.1:6000"),
	}, ct.Endpoints)
	require.False(ct.Expired(20))
	require.True(ct.Expired(70))

	st, err := DecryptServer(ct.Packet[:], a.pk, a.secret, params.ApplicationID, 20)
	require.NoError(err)
	require.Equal(params.ClientID, st.ClientID)
	require.Equal(params.ClientToServerKey, st.ClientToServerKey)
	require.Equal(params.ServerToClientKey, st.ServerToClientKey)
	require.Equal(ct.Endpoints, st.Endpoints)
	require.Equal(params.HandshakeTimeout, st.HandshakeTimeout)
	require.Equal([]byte("user data"), st.UserData[:9])
	require.Equal(make([]byte, protocol.UserDataSize-9), st.UserData[9:])
	require.Equal(ct.Packet[protocol.SignedSize:], st.Signature[:])
	require.True(st.HasEndpoint(network.MustParseEndpoint("127.0.0.1:6000")))
	require.False(st.HasEndpoint(network.MustParseEndpoint("127.0.0.1:6001")))
}

func TestGenerateRoundTripManyClients(t *testing.T) {
	a := newAuthority(t)
	for i := uint64(0); i < 16; i++ {
		params := newParams(t, fmt.Sprintf("10.0.0.%d:%d", i+1, 8000+i))
		params.ClientID = i * 7919

		data, err := Generate(params, a.sk, a.secret)
		require.NoError(t, err)

		ct, err := ExtractClient(data, 100, 0)
		require.NoError(t, err)
		st, err := DecryptServer(ct.Packet[:], a.pk, a.secret, 100, 0)
		require.NoError(t, err)

		require.Equal(t, params.ClientID, st.ClientID)
		require.Equal(t, ct.ClientToServerKey, st.ClientToServerKey)
		require.Equal(t, ct.ServerToClientKey, st.ServerToClientKey)
		require.Equal(t, ct.Endpoints, st.Endpoints)
	}
}

func TestGenerateInvalid(t *testing.T) {
	a := newAuthority(t)

	tooManyV4 := make([]string, protocol.MaxTokenEndpoints+1)
	for i := range tooManyV4 {
		tooManyV4[i] = fmt.Sprintf("10.0.0.1:%d", 1000+i)
	}
	tooManyV6 := make([]string, 29)
	for i := range tooManyV6 {
		tooManyV6[i] = fmt.Sprintf("[::1]:%d", 1000+i)
	}

	tests := []struct {
		name      string
		endpoints []string
		userData  []byte
		err       error
	}{
		{"no endpoints", nil, nil, ErrInvalidEndpointCount},
		{"33 endpoints", tooManyV4, nil, ErrInvalidEndpointCount},
		{"29 ipv6 endpoints", tooManyV6, nil, ErrEndpointsTooLarge},
		{"bad endpoint", []string{"localhost"}, nil, network.ErrInvalidEndpoint},
		{"user data", []string{"[::1]:5000"}, make([]byte, protocol.UserDataSize+1), ErrUserDataTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := newParams(t, tt.endpoints...)
			params.UserData = tt.userData
			_, err := Generate(params, a.sk, a.secret)
			require.ErrorIs(t, err, tt.err)
		})
	}

	t.Run("32 ipv4 and 28 ipv6 endpoints fit", func(t *testing.T) {
		_, err := Generate(newParams(t, tooManyV4[:32]...), a.sk, a.secret)
		require.NoError(t, err)
		_, err = Generate(newParams(t, tooManyV6[:28]...), a.sk, a.secret)
		require.NoError(t, err)
	})
}

func TestExtractClientRejects(t *testing.T) {
	require := require.New(t)
	a := newAuthority(t)
	params := newParams(t, "[::1]:5000")
	data, err := Generate(params, a.sk, a.secret)
	require.NoError(err)

	_, err = ExtractClient(data, 101, 0)
	require.ErrorIs(err, ErrInvalidToken)

	_, err = ExtractClient(data[:len(data)-1], 100, 0)
	require.ErrorIs(err, ErrInvalidToken)

	_, err = ExtractClient(data, 100, params.ExpirationTime)
	require.ErrorIs(err, ErrTokenExpired)

	corrupt := append([]byte(nil), data...)
	corrupt[0] ^= 0xff
	_, err = ExtractClient(corrupt, 100, 0)
	require.ErrorIs(err, ErrInvalidToken)
}

func TestDecryptServerRejects(t *testing.T) {
	a := newAuthority(t)
	other := newAuthority(t)
	params := newParams(t, "[::1]:5000")
	data, err := Generate(params, a.sk, a.secret)
	require.NoError(t, err)
	ct, err := ExtractClient(data, 100, 0)
	require.NoError(t, err)

	flip := func(i int) []byte {
		b := append([]byte(nil), ct.Packet[:]...)
		b[i] ^= 0x01
		return b
	}

	tests := []struct {
		name   string
		packet []byte
		pk     crypt.PublicKey
		secret crypt.Key
		appID  uint64
		now    uint64
		err    error
	}{
		{"wrong public key", ct.Packet[:], other.pk, a.secret, 100, 0, ErrInvalidToken},
		{"wrong secret key", ct.Packet[:], a.pk, other.secret, 100, 0, ErrInvalidToken},
		{"wrong app id", ct.Packet[:], a.pk, a.secret, 7, 0, ErrInvalidToken},
		{"expired", ct.Packet[:], a.pk, a.secret, 100, params.ExpirationTime + 1, ErrTokenExpired},
		{"short", ct.Packet[:100], a.pk, a.secret, 100, 0, ErrInvalidToken},
		{"tampered public section", flip(40), a.pk, a.secret, 100, 0, ErrInvalidToken},
		{"tampered padding", flip(500), a.pk, a.secret, 100, 0, ErrInvalidToken},
		{"tampered secret section", flip(protocol.PublicSectionSize + 10), a.pk, a.secret, 100, 0, ErrInvalidToken},
		{"tampered signature", flip(protocol.SignedSize + 3), a.pk, a.secret, 100, 0, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptServer(tt.packet, tt.pk, tt.secret, tt.appID, tt.now)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

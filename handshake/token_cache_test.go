package handshake

import (
	"testing"

	"github.com/jxsl13/gamenet/crypt"
	"github.com/jxsl13/gamenet/network"
	"github.com/jxsl13/gamenet/packet"
	"github.com/jxsl13/gamenet/token"
	"github.com/stretchr/testify/require"
)

func sig(i byte) crypt.Signature {
	var s crypt.Signature
	s[0] = i
	s[63] = i
	return s
}

func TestTokenCacheEvictsLeastRecentlyUsed(t *testing.T) {
	const capacity = 8
	ep := network.MustParseEndpoint("127.0.0.1:1")

	t.Run("insertion order", func(t *testing.T) {
		c := NewTokenCache(capacity)
		for i := byte(0); i <= capacity; i++ {
			c.Add(sig(i), ep, 100)
		}
		require.Equal(t, capacity, c.Len())
		require.False(t, c.Contains(sig(0)))
		for i := byte(1); i <= capacity; i++ {
			require.True(t, c.Contains(sig(i)), i)
		}
	})

	t.Run("lookup refreshes", func(t *testing.T) {
		c := NewTokenCache(capacity)
		for i := byte(0); i < capacity; i++ {
			c.Add(sig(i), ep, 100)
		}
		got, ok := c.Find(sig(0))
		require.True(t, ok)
		require.Equal(t, ep, got)

		require.True(t, c.Add(sig(capacity), ep, 100))
		require.False(t, c.Contains(sig(1)))
		require.True(t, c.Contains(sig(0)))
		for i := byte(2); i <= capacity; i++ {
			require.True(t, c.Contains(sig(i)), i)
		}
	})

	t.Run("expired", func(t *testing.T) {
		c := NewTokenCache(capacity)
		c.Add(sig(1), ep, 10)
		c.Add(sig(2), ep, 20)
		require.Equal(t, 1, c.RemoveExpired(10))
		require.False(t, c.Contains(sig(1)))
		require.True(t, c.Contains(sig(2)))
		c.Clear()
		require.Zero(t, c.Len())
	})
}

func TestEncryptionState(t *testing.T) {
	require := require.New(t)
	e := newEncryptionState(&token.ServerToken{ExpirationTime: 10, HandshakeTimeout: 2, ClientID: 5})

	var c packet.ChallengeRequest
	require.False(e.Answers(packet.ChallengeResponse{}))

	for nonce := uint64(0); nonce < 6; nonce++ {
		c.Nonce = nonce
		c.Data[0] = byte(nonce + 1)
		e.issue(c)
	}

	require.True(e.Answers(packet.ChallengeResponse{Nonce: 5, Data: c.Data}))
	wrong := c.Data
	wrong[1] = 1
	require.False(e.Answers(packet.ChallengeResponse{Nonce: 5, Data: wrong}))
	// overwritten by nonce 5
	var old [256]byte
	old[0] = 2
	require.False(e.Answers(packet.ChallengeResponse{Nonce: 1, Data: old}))

	require.False(e.TimedOut(9))
	require.True(e.TimedOut(10))
	e.LastReceive = 2
	require.True(e.TimedOut(0))
}

func TestEncryptionMapRemoveTimedOut(t *testing.T) {
	require := require.New(t)
	m := NewEncryptionMap(2)
	a := network.MustParseEndpoint("127.0.0.1:1")
	b := network.MustParseEndpoint("127.0.0.1:2")

	require.NoError(m.Insert(a, newEncryptionState(&token.ServerToken{ExpirationTime: 5})))
	require.NoError(m.Insert(b, newEncryptionState(&token.ServerToken{ExpirationTime: 50})))
	require.True(m.IsFull())
	require.Error(m.Insert(network.MustParseEndpoint("127.0.0.1:3"), newEncryptionState(&token.ServerToken{})))

	require.Equal([]network.Endpoint{a}, m.RemoveTimedOut(5))
	require.Equal(1, m.Len())
	_, ok := m.Find(b)
	require.True(ok)
}

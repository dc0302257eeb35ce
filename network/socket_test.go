package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSocketSendReceive(t *testing.T) {
	require := require.New(t)

	a, err := ListenFrom("127.0.0.1:0")
	require.NoError(err)
	defer a.Close()

	b, err := ListenFrom("127.0.0.1:0")
	require.NoError(err)
	defer b.Close()

	buf := make([]byte, 64)
	_, _, err = b.ReceiveFrom(buf)
	require.ErrorIs(err, ErrNoData)

	require.NoError(a.SendTo(b.LocalEndpoint(), []byte("ping")))

	require.Eventually(func() bool {
		n, from, err := b.ReceiveFrom(buf)
		if err != nil {
			return false
		}
		return string(buf[:n]) == "ping" && from == a.LocalEndpoint()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSocketClose(t *testing.T) {
	require := require.New(t)

	s, err := ListenFrom("127.0.0.1:0")
	require.NoError(err)
	require.NotZero(s.LocalEndpoint().Port())

	require.NoError(s.Close())
	require.NoError(s.Close())

	_, _, err = s.ReceiveFrom(make([]byte, 8))
	require.ErrorIs(err, ErrClosed)
	require.ErrorIs(s.SendTo(s.LocalEndpoint(), []byte{1}), ErrClosed)
}

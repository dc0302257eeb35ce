package network

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryNetwork(t *testing.T) {
	require := require.New(t)

	n := NewMemoryNetwork()
	server, err := n.Listen(MustParseEndpoint("[::1]:5000"))
	require.NoError(err)

	_, err = n.Listen(MustParseEndpoint("[::1]:5000"))
	require.ErrorIs(err, ErrEndpointInUse)

	client, err := n.Factory()(server.LocalEndpoint())
	require.NoError(err)
	require.NotZero(client.LocalEndpoint().Port())
	require.True(client.LocalEndpoint().Addr().Is6())

	buf := make([]byte, 16)
	_, _, err = server.ReceiveFrom(buf)
	require.ErrorIs(err, ErrNoData)

	require.NoError(client.SendTo(server.LocalEndpoint(), []byte("a")))
	require.NoError(client.SendTo(server.LocalEndpoint(), []byte("b")))

	nr, from, err := server.ReceiveFrom(buf)
	require.NoError(err)
	require.Equal("a", string(buf[:nr]))
	require.Equal(client.LocalEndpoint(), from)

	nr, _, err = server.ReceiveFrom(buf)
	require.NoError(err)
	require.Equal("b", string(buf[:nr]))

	// unbound destinations swallow datagrams
	require.NoError(client.SendTo(MustParseEndpoint("[::1]:1"), []byte("c")))

	require.NoError(server.Close())
	_, _, err = server.ReceiveFrom(buf)
	require.ErrorIs(err, ErrClosed)
	require.ErrorIs(server.SendTo(from, []byte("d")), ErrClosed)
}

func TestSimulatorLatencyAndDrop(t *testing.T) {
	require := require.New(t)

	n := NewMemoryNetwork()
	a, err := n.Listen(MustParseEndpoint("127.0.0.1:1000"))
	require.NoError(err)
	b, err := n.Listen(MustParseEndpoint("127.0.0.1:2000"))
	require.NoError(err)

	count := 0
	sim := NewSimulator(a, SimulatorConfig{
		Latency: 0.5,
		Drop: func(Endpoint, []byte) bool {
			count++
			return count%2 == 0
		},
	})

	for i := 0; i < 4; i++ {
		require.NoError(sim.SendTo(b.LocalEndpoint(), []byte{byte(i)}))
	}
	require.Equal(uint64(2), sim.Dropped())
	require.Zero(b.Pending())

	sim.Update(0.25)
	require.Zero(b.Pending())

	sim.Update(0.25)
	require.Equal(2, b.Pending())

	buf := make([]byte, 4)
	_, _, err = b.ReceiveFrom(buf)
	require.NoError(err)
	require.Equal(byte(0), buf[0])
	_, _, err = b.ReceiveFrom(buf)
	require.NoError(err)
	require.Equal(byte(2), buf[0])
}

func TestSimulatorDuplicate(t *testing.T) {
	require := require.New(t)

	n := NewMemoryNetwork()
	a, err := n.Listen(MustParseEndpoint("127.0.0.1:1000"))
	require.NoError(err)
	b, err := n.Listen(MustParseEndpoint("127.0.0.1:2000"))
	require.NoError(err)

	sim := NewSimulator(a, SimulatorConfig{DuplicateChance: 1})
	require.NoError(sim.SendTo(b.LocalEndpoint(), []byte("x")))
	require.Equal(2, b.Pending())
	require.Equal(uint64(1), sim.Duplicated())
}

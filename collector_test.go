package gamenet

import (
	"strings"
	"testing"

	"github.com/jxsl13/gamenet/network"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestServerCollector(t *testing.T) {
	require := require.New(t)
	a := newAuthority(t)
	n := network.NewMemoryNetwork()
	s := a.server(t, n)

	col := NewServerCollector(s, prometheus.Labels{"instance": "test"})
	reg := prometheus.NewPedanticRegistry()
	require.NoError(reg.Register(col))
	require.Equal(19, testutil.CollectAndCount(col))

	expected := `
# HELP gamenet_server_max_clients Number of client slots.
# TYPE gamenet_server_max_clients gauge
gamenet_server_max_clients{instance="test"} 4
# HELP gamenet_server_running 1 if the server is bound to its address.
# TYPE gamenet_server_running gauge
gamenet_server_running{instance="test"} 1
`
	require.NoError(testutil.CollectAndCompare(col, strings.NewReader(expected),
		"gamenet_server_max_clients", "gamenet_server_running"))

	c := newTestClient(t, n)
	require.NoError(c.Connect(a.token(t, 3), 0))
	tick(t, 100, func() bool { return s.Snapshot().ConnectedClients == 1 }, c, s)

	expected = `
# HELP gamenet_server_connected_clients Number of connected clients.
# TYPE gamenet_server_connected_clients gauge
gamenet_server_connected_clients{instance="test"} 1
# HELP gamenet_server_connections_accepted_total Handshakes that completed.
# TYPE gamenet_server_connections_accepted_total counter
gamenet_server_connections_accepted_total{instance="test"} 1
`
	require.NoError(testutil.CollectAndCompare(col, strings.NewReader(expected),
		"gamenet_server_connected_clients", "gamenet_server_connections_accepted_total"))
}

func TestClientCollector(t *testing.T) {
	require := require.New(t)
	n := network.NewMemoryNetwork()
	c := newTestClient(t, n)

	col := NewClientCollector(c, nil)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(reg.Register(col))
	require.Equal(10, testutil.CollectAndCount(col))

	expected := `
# HELP gamenet_client_packets_sent_total Datagrams sent.
# TYPE gamenet_client_packets_sent_total counter
gamenet_client_packets_sent_total 0
# HELP gamenet_client_state Connection state, see handshake.ClientState.
# TYPE gamenet_client_state gauge
gamenet_client_state 0
`
	require.NoError(testutil.CollectAndCompare(col, strings.NewReader(expected),
		"gamenet_client_packets_sent_total", "gamenet_client_state"))
}

package handshake

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from  ClientState
		event ClientEvent
		to    ClientState
		ok    bool
	}{
		{ClientStateDisconnected, ClientEventConnect, ClientStateSendingConnectionRequest, true},
		{ClientStateConnectionDenied, ClientEventConnect, ClientStateSendingConnectionRequest, true},
		{ClientStateConnected, ClientEventConnect, ClientStateConnected, false},
		{ClientStateDisconnected, ClientEventInvalidToken, ClientStateInvalidConnectToken, true},
		{ClientStateSendingConnectionRequest, ClientEventTokenExpired, ClientStateConnectTokenExpired, true},
		{ClientStateConnected, ClientEventTokenExpired, ClientStateConnected, false},
		{ClientStateSendingConnectionRequest, ClientEventChallengeRequest, ClientStateSendingChallengeResponse, true},
		{ClientStateSendingChallengeResponse, ClientEventChallengeRequest, ClientStateSendingChallengeResponse, true},
		{ClientStateConnected, ClientEventChallengeRequest, ClientStateConnected, false},
		{ClientStateSendingConnectionRequest, ClientEventConnectionAccepted, ClientStateSendingConnectionRequest, false},
		{ClientStateSendingChallengeResponse, ClientEventConnectionAccepted, ClientStateConnected, true},
		{ClientStateSendingChallengeResponse, ClientEventNextServer, ClientStateSendingConnectionRequest, true},
		{ClientStateSendingConnectionRequest, ClientEventConnectionDenied, ClientStateConnectionDenied, true},
		{ClientStateSendingConnectionRequest, ClientEventHandshakeTimeout, ClientStateConnectionRequestTimedOut, true},
		{ClientStateSendingChallengeResponse, ClientEventHandshakeTimeout, ClientStateChallengeResponseTimedOut, true},
		{ClientStateConnected, ClientEventHandshakeTimeout, ClientStateConnected, false},
		{ClientStateConnected, ClientEventConnectionTimeout, ClientStateConnectionTimedOut, true},
		{ClientStateConnected, ClientEventDisconnect, ClientStateDisconnected, true},
		{ClientStateConnectionTimedOut, ClientEventDisconnect, ClientStateDisconnected, true},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+" on "+tt.event.String(), func(t *testing.T) {
			to, ok := Transition(tt.from, tt.event)
			require.Equal(t, tt.to, to)
			require.Equal(t, tt.ok, ok)
		})
	}
}

func TestClientStatePredicates(t *testing.T) {
	require := require.New(t)
	require.True(ClientStateDisconnected.IsIdle())
	require.False(ClientStateDisconnected.IsFailure())
	require.True(ClientStateConnectTokenExpired.IsFailure())
	require.True(ClientStateConnectionTimedOut.IsFailure())
	require.False(ClientStateConnected.IsFailure())
	require.True(ClientStateSendingChallengeResponse.IsHandshaking())
	require.False(ClientStateConnected.IsHandshaking())
}

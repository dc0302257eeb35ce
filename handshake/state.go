package handshake

// ClientState is the state of a Client.
type ClientState int

const (
	ClientStateDisconnected ClientState = iota
	ClientStateSendingConnectionRequest
	ClientStateSendingChallengeResponse
	ClientStateConnected

	// failure states, a new Connect leaves them

	ClientStateInvalidConnectToken
	ClientStateConnectTokenExpired
	ClientStateConnectionRequestTimedOut
	ClientStateChallengeResponseTimedOut
	ClientStateConnectionDenied
	ClientStateConnectionTimedOut
)

func (s ClientState) String() string {
	switch s {
	case ClientStateDisconnected:
		return "disconnected"
	case ClientStateSendingConnectionRequest:
		return "sending connection request"
	case ClientStateSendingChallengeResponse:
		return "sending challenge response"
	case ClientStateConnected:
		return "connected"
	case ClientStateInvalidConnectToken:
		return "invalid connect token"
	case ClientStateConnectTokenExpired:
		return "connect token expired"
	case ClientStateConnectionRequestTimedOut:
		return "connection request timed out"
	case ClientStateChallengeResponseTimedOut:
		return "challenge response timed out"
	case ClientStateConnectionDenied:
		return "connection denied"
	case ClientStateConnectionTimedOut:
		return "connection timed out"
	default:
		return "unknown"
	}
}

// IsHandshaking reports whether the client is trying to connect.
func (s ClientState) IsHandshaking() bool {
	return s == ClientStateSendingConnectionRequest || s == ClientStateSendingChallengeResponse
}

// IsFailure reports whether s is one of the terminal failure states.
func (s ClientState) IsFailure() bool {
	return s >= ClientStateInvalidConnectToken && s <= ClientStateConnectionTimedOut
}

// IsIdle reports whether the client neither connects nor is connected.
func (s ClientState) IsIdle() bool {
	return s == ClientStateDisconnected || s.IsFailure()
}

// ClientEvent drives the client state machine.
type ClientEvent int

const (
	ClientEventConnect ClientEvent = iota
	ClientEventInvalidToken
	ClientEventTokenExpired
	ClientEventChallengeRequest
	ClientEventConnectionAccepted
	// ClientEventNextServer is a denial or a handshake timeout with endpoints left to try.
	ClientEventNextServer
	// ClientEventConnectionDenied is a denial by the last endpoint.
	ClientEventConnectionDenied
	// ClientEventHandshakeTimeout is a handshake timeout at the last endpoint.
	ClientEventHandshakeTimeout
	ClientEventConnectionTimeout
	ClientEventDisconnect
)

func (e ClientEvent) String() string {
	switch e {
	case ClientEventConnect:
		return "connect"
	case ClientEventInvalidToken:
		return "invalid token"
	case ClientEventTokenExpired:
		return "token expired"
	case ClientEventChallengeRequest:
		return "challenge request"
	case ClientEventConnectionAccepted:
		return "connection accepted"
	case ClientEventNextServer:
		return "next server"
	case ClientEventConnectionDenied:
		return "connection denied"
	case ClientEventHandshakeTimeout:
		return "handshake timeout"
	case ClientEventConnectionTimeout:
		return "connection timeout"
	case ClientEventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Transition returns the state that follows s on e.
// ok is false if e is not valid in s, the state is then returned unchanged.
func Transition(s ClientState, e ClientEvent) (next ClientState, ok bool) {
	switch e {
	case ClientEventConnect:
		if s.IsIdle() {
			return ClientStateSendingConnectionRequest, true
		}
	case ClientEventInvalidToken:
		if s.IsIdle() {
			return ClientStateInvalidConnectToken, true
		}
	case ClientEventTokenExpired:
		if s.IsIdle() || s.IsHandshaking() {
			return ClientStateConnectTokenExpired, true
		}
	case ClientEventChallengeRequest:
		if s.IsHandshaking() {
			return ClientStateSendingChallengeResponse, true
		}
	case ClientEventConnectionAccepted:
		if s == ClientStateSendingChallengeResponse {
			return ClientStateConnected, true
		}
	case ClientEventNextServer:
		if s.IsHandshaking() {
			return ClientStateSendingConnectionRequest, true
		}
	case ClientEventConnectionDenied:
		if s.IsHandshaking() {
			return ClientStateConnectionDenied, true
		}
	case ClientEventHandshakeTimeout:
		switch s {
		case ClientStateSendingConnectionRequest:
			return ClientStateConnectionRequestTimedOut, true
		case ClientStateSendingChallengeResponse:
			return ClientStateChallengeResponseTimedOut, true
		}
	case ClientEventConnectionTimeout:
		if s == ClientStateConnected {
			return ClientStateConnectionTimedOut, true
		}
	case ClientEventDisconnect:
		return ClientStateDisconnected, true
	}
	return s, false
}

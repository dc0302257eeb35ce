package handshake

import "github.com/jxsl13/gamenet/network"

type EventType int

const (
	EventNewConnection EventType = iota
	EventDisconnected
	EventPayload
)

func (t EventType) String() string {
	switch t {
	case EventNewConnection:
		return "new connection"
	case EventDisconnected:
		return "disconnected"
	case EventPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// Event is emitted by the Server for the application.
type Event struct {
	Type     EventType
	Index    int
	ClientID uint64
	Endpoint network.Endpoint

	// Payload is set for EventPayload.
	// It belongs to the server's buffer pool, release it with Server.FreePayload.
	Payload []byte
}

package handshake

import (
	"github.com/jxsl13/gamenet/crypt"
	"github.com/jxsl13/gamenet/internal/container"
	"github.com/jxsl13/gamenet/network"
	"github.com/jxsl13/gamenet/packet"
	"github.com/jxsl13/gamenet/protocol"
	"github.com/jxsl13/gamenet/token"
)

const challengeHistory = 4

// EncryptionState is what the server knows about an endpoint that presented
// a valid connect token but did not answer a challenge yet.
type EncryptionState struct {
	Sequence uint64

	ExpirationTime   uint64
	HandshakeTimeout float64

	// seconds since the last packet was sent or received
	LastSend    float64
	LastReceive float64

	ClientID          uint64
	ClientToServerKey crypt.Key
	ServerToClientKey crypt.Key
	UserData          [protocol.UserDataSize]byte
	Signature         crypt.Signature

	Replay *packet.ReplayBuffer

	challenges [challengeHistory]packet.ChallengeRequest
	issued     int
}

func newEncryptionState(t *token.ServerToken) *EncryptionState {
	return &EncryptionState{
		ExpirationTime:    t.ExpirationTime,
		HandshakeTimeout:  float64(t.HandshakeTimeout),
		ClientID:          t.ClientID,
		ClientToServerKey: t.ClientToServerKey,
		ServerToClientKey: t.ServerToClientKey,
		UserData:          t.UserData,
		Signature:         t.Signature,
		Replay:            packet.NewReplayBuffer(),
	}
}

// issue records a new challenge. Only the last few challenges stay valid.
func (e *EncryptionState) issue(c packet.ChallengeRequest) {
	e.challenges[c.Nonce%challengeHistory] = c
	e.issued++
}

// Answers reports whether r echoes one of the recently issued challenges.
func (e *EncryptionState) Answers(r packet.ChallengeResponse) bool {
	if e.issued == 0 {
		return false
	}
	c := e.challenges[r.Nonce%challengeHistory]
	return c.Nonce == r.Nonce && c.Data == r.Data
}

// TimedOut reports whether the handshake took too long or the token expired.
// A handshake timeout of zero never times out.
func (e *EncryptionState) TimedOut(now uint64) bool {
	if e.ExpirationTime <= now {
		return true
	}
	return e.HandshakeTimeout > 0 && e.LastReceive >= e.HandshakeTimeout
}

// EncryptionMap holds the pending handshakes of a server by endpoint.
type EncryptionMap struct {
	table *container.Table[network.Endpoint, *EncryptionState]
}

func NewEncryptionMap(capacity int) *EncryptionMap {
	return &EncryptionMap{
		table: container.NewTable[network.Endpoint, *EncryptionState](capacity),
	}
}

// Insert adds a pending handshake. It fails with container.ErrFull.
func (m *EncryptionMap) Insert(ep network.Endpoint, e *EncryptionState) error {
	return m.table.Insert(ep, e)
}

func (m *EncryptionMap) Find(ep network.Endpoint) (*EncryptionState, bool) {
	return m.table.Find(ep)
}

func (m *EncryptionMap) Remove(ep network.Endpoint) bool {
	return m.table.Remove(ep)
}

func (m *EncryptionMap) Len() int {
	return m.table.Len()
}

func (m *EncryptionMap) IsFull() bool {
	return m.table.IsFull()
}

// Range calls f for every pending handshake until f returns false.
func (m *EncryptionMap) Range(f func(ep network.Endpoint, e *EncryptionState) bool) {
	m.table.Range(f)
}

// RemoveTimedOut evicts every handshake that timed out at now.
func (m *EncryptionMap) RemoveTimedOut(now uint64) []network.Endpoint {
	var evicted []network.Endpoint
	m.table.Range(func(ep network.Endpoint, e *EncryptionState) bool {
		if e.TimedOut(now) {
			evicted = append(evicted, ep)
		}
		return true
	})
	for _, ep := range evicted {
		m.table.Remove(ep)
	}
	return evicted
}

func (m *EncryptionMap) Clear() {
	m.table.Clear()
}

package packet

import "github.com/jxsl13/gamenet/protocol"

const emptySequence = ^uint64(0)

// ReplayBuffer remembers the sequence numbers of the last
// protocol.ReplayWindowSize packets of a connection.
// The zero value is not ready for use, see NewReplayBuffer.
type ReplayBuffer struct {
	mostRecent uint64
	received   [protocol.ReplayWindowSize]uint64
}

func NewReplayBuffer() *ReplayBuffer {
	r := &ReplayBuffer{}
	r.Reset()
	return r
}

func (r *ReplayBuffer) Reset() {
	r.mostRecent = 0
	for i := range r.received {
		r.received[i] = emptySequence
	}
}

// AlreadyReceived reports whether seq is too old or has been seen before.
func (r *ReplayBuffer) AlreadyReceived(seq uint64) bool {
	if seq+protocol.ReplayWindowSize <= r.mostRecent {
		return true
	}
	e := r.received[seq%protocol.ReplayWindowSize]
	return e != emptySequence && e >= seq
}

// Update records seq as received.
func (r *ReplayBuffer) Update(seq uint64) {
	if seq > r.mostRecent {
		r.mostRecent = seq
	}
	r.received[seq%protocol.ReplayWindowSize] = seq
}

// Accept records seq and reports true if it has not been seen before.
func (r *ReplayBuffer) Accept(seq uint64) bool {
	if r.AlreadyReceived(seq) {
		return false
	}
	r.Update(seq)
	return true
}

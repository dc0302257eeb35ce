package protocol

const (
	// MaxClients is the number of slots in a server's client table.
	MaxClients = 32

	TokenCacheCapacity    = MaxClients * 8
	EncryptionMapCapacity = MaxClients * 4

	// ReplayWindowSize is how many sequence numbers behind the newest one are still accepted.
	ReplayWindowSize = 256

	// seconds
	SendRate                 = 1.0 / 10.0
	DefaultConnectionTimeout = 10.0

	// DisconnectRedundancy is how often a disconnect packet is sent.
	// Nobody acknowledges it.
	DisconnectRedundancy = 10

	// DeniedSequenceOffset offsets sequence numbers of ConnectionDenied packets
	// that are sent without any handshake state so that they never share a nonce
	// with packets of a later handshake under the same key.
	DeniedSequenceOffset uint64 = 1 << 62
)

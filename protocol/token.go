package protocol

const (
	// VersionString is written into every connect token and
	// is part of the associated data of every encrypted packet.
	VersionString = "GNET 1.00\x00"
	VersionSize   = len(VersionString)

	KeySize       = 32
	AEADOverhead  = 16
	SignatureSize = 64
	UserDataSize  = 256

	MaxTokenEndpoints = 32

	// ConnectTokenSize is the size of the whole token the authority hands to a client.
	ConnectTokenSize = RestSectionSize + ConnectTokenPacketSize

	// RestSectionSize is the cleartext head only the client reads.
	RestSectionSize = VersionSize + 8 + 8 + 2*KeySize

	// ConnectTokenPacketSize is the part of the token that is sent to the servers verbatim.
	ConnectTokenPacketSize = 1024

	// PublicSectionSize is the zero padded, signed cleartext section of the token packet.
	PublicSectionSize = 568

	SecretSectionSize          = ConnectTokenPacketSize - PublicSectionSize - SignatureSize
	SecretSectionPlaintextSize = SecretSectionSize - AEADOverhead
	SecretZeroRegionSize       = SignatureSize - AEADOverhead

	// SignedSize is the number of token packet bytes covered by the signature.
	SignedSize = PublicSectionSize + SecretSectionSize
)

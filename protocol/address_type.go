package protocol

const (
	AddressTypeNone AddressType = 0
	AddressTypeIPv4 AddressType = 1
	AddressTypeIPv6 AddressType = 2
)

// AddressType is the endpoint type tag that prefixes every endpoint on the wire.
type AddressType uint8

func (t AddressType) IsValid() bool {
	return t == AddressTypeIPv4 || t == AddressTypeIPv6
}

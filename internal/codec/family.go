package codec

// Family selects the IP version a builder or checksum targets. It is
// distinct from model.Family: this package must stay importable by
// anything that speaks raw wire bytes without pulling in the scan model.
type Family uint8

const (
	V4 Family = iota
	V6
)

func (f Family) String() string {
	if f == V6 {
		return "ipv6"
	}
	return "ipv4"
}

// IANA protocol numbers this package frames or checksums against.
const (
	protoICMP   byte = 1
	protoTCP    byte = 6
	protoUDP    byte = 17
	protoICMPv6 byte = 58
)

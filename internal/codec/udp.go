package codec

import (
	"encoding/binary"
	"net"
)

// BuildUDP renders a UDP datagram with the pseudo-header checksum. A zero
// computed checksum is mapped to 0xFFFF (UDP reserves 0 for "no checksum").
func BuildUDP(family Family, src, dst net.IP, srcPort, dstPort uint16, payload []byte) ([]byte, error) {
	length := 8 + len(payload)
	if length > 0xFFFF {
		return nil, &BuildError{"udp", "payload too large"}
	}
	seg := make([]byte, length)
	binary.BigEndian.PutUint16(seg[0:], srcPort)
	binary.BigEndian.PutUint16(seg[2:], dstPort)
	binary.BigEndian.PutUint16(seg[4:], uint16(length))
	copy(seg[8:], payload)

	csum := l4Checksum(family, src, dst, protoUDP, seg)
	if csum == 0 {
		csum = 0xFFFF
	}
	binary.BigEndian.PutUint16(seg[6:], csum)
	return seg, nil
}

// ParsedUDP is what Parse extracts from a UDP datagram.
type ParsedUDP struct {
	SrcPort, DstPort uint16
	Payload          []byte
}

func parseUDP(seg []byte) (*ParsedUDP, error) {
	if len(seg) < 8 {
		return nil, &ParseError{"udp", "truncated header"}
	}
	length := int(binary.BigEndian.Uint16(seg[4:]))
	if length < 8 || length > len(seg) {
		return nil, &ParseError{"udp", "invalid length field"}
	}
	return &ParsedUDP{
		SrcPort: binary.BigEndian.Uint16(seg[0:]),
		DstPort: binary.BigEndian.Uint16(seg[2:]),
		Payload: seg[8:length],
	}, nil
}

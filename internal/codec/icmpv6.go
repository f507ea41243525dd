package codec

import (
	"encoding/binary"
	"net"
)

// ICMPv6 types (RFC 4443) and NDP types (RFC 4861) this package builds.
const (
	ICMPv6EchoRequest          = 128
	ICMPv6EchoReply            = 129
	ICMPv6DestUnreachable      = 1
	ICMPv6NeighborSolicitation = 135
	ICMPv6NeighborAdvertise    = 136

	ICMPv6CodeNoRoute     = 0
	ICMPv6CodeAdminProhib = 1
	ICMPv6CodeAddrUnreach = 3
	ICMPv6CodePortUnreach = 4
)

// BuildICMPv6Echo renders an ICMPv6 echo request/reply; the checksum is
// mandatory (unlike ICMPv4) and seeded with the IPv6 pseudo-header.
func BuildICMPv6Echo(src, dst net.IP, isRequest bool, id, seq uint16, payload []byte) []byte {
	h := make([]byte, 8+len(payload))
	if isRequest {
		h[0] = ICMPv6EchoRequest
	} else {
		h[0] = ICMPv6EchoReply
	}
	binary.BigEndian.PutUint16(h[4:], id)
	binary.BigEndian.PutUint16(h[6:], seq)
	copy(h[8:], payload)
	csum := l4Checksum(V6, src, dst, protoICMPv6, h)
	binary.BigEndian.PutUint16(h[2:], csum)
	return h
}

// BuildNeighborSolicitation renders an NDP Neighbor Solicitation targeting
// targetAddr, with a Source Link-Layer Address option carrying srcMAC
// (RFC 4861 §4.3). Used to resolve a v6 next hop before a probe can be sent
// on-link.
func BuildNeighborSolicitation(src, dst, targetAddr net.IP, srcMAC net.HardwareAddr) []byte {
	h := make([]byte, 24+8) // 4 (type/code/csum) + 4 reserved + 16 target + 8 option
	h[0] = ICMPv6NeighborSolicitation
	// bytes 4-7 reserved, zero
	copy(h[8:24], targetAddr.To16())
	h[24] = 1 // option type: Source Link-Layer Address
	h[25] = 1 // option length in units of 8 bytes
	copy(h[26:32], srcMAC)

	csum := l4Checksum(V6, src, dst, protoICMPv6, h)
	binary.BigEndian.PutUint16(h[2:], csum)
	return h
}

// ParsedICMPv6 is what Parse extracts from an ICMPv6 message.
type ParsedICMPv6 struct {
	Type, Code uint8
	ID, Seq    uint16
	Payload    []byte
}

func parseICMPv6(seg []byte) (*ParsedICMPv6, error) {
	if len(seg) < 8 {
		return nil, &ParseError{"icmpv6", "truncated header"}
	}
	p := &ParsedICMPv6{Type: seg[0], Code: seg[1]}
	switch p.Type {
	case ICMPv6EchoRequest, ICMPv6EchoReply:
		p.ID = binary.BigEndian.Uint16(seg[4:])
		p.Seq = binary.BigEndian.Uint16(seg[6:])
		p.Payload = seg[8:]
	default:
		p.Payload = seg[8:]
	}
	return p, nil
}

package codec

import "encoding/binary"

// ICMP types/codes this package builds or parses (RFC 792).
const (
	ICMPEchoReply       = 0
	ICMPDestUnreachable = 3
	ICMPEchoRequest     = 8

	// Destination Unreachable codes relevant to probe classification
	// (spec.md §4.2): Filtered for TCP, Closed for UDP (RFC 1122).
	ICMPCodeNetUnreachable     = 0
	ICMPCodeHostUnreachable    = 1
	ICMPCodeProtoUnreachable   = 2
	ICMPCodePortUnreachable    = 3
	ICMPCodeNetProhibited      = 9
	ICMPCodeHostProhibited     = 10
	ICMPCodeAdminProhibited    = 13
)

// BuildICMPEcho renders an ICMPv4 echo request/reply.
func BuildICMPEcho(isRequest bool, id, seq uint16, payload []byte) []byte {
	h := make([]byte, 8+len(payload))
	if isRequest {
		h[0] = ICMPEchoRequest
	} else {
		h[0] = ICMPEchoReply
	}
	h[1] = 0
	binary.BigEndian.PutUint16(h[4:], id)
	binary.BigEndian.PutUint16(h[6:], seq)
	copy(h[8:], payload)
	csum := Checksum(h)
	binary.BigEndian.PutUint16(h[2:], csum)
	return h
}

// ParsedICMP is what Parse extracts from an ICMPv4 message.
type ParsedICMP struct {
	Type, Code uint8
	ID, Seq    uint16 // only meaningful for echo request/reply
	Payload    []byte
}

func parseICMP(seg []byte) (*ParsedICMP, error) {
	if len(seg) < 8 {
		return nil, &ParseError{"icmp", "truncated header"}
	}
	p := &ParsedICMP{Type: seg[0], Code: seg[1]}
	switch p.Type {
	case ICMPEchoRequest, ICMPEchoReply:
		p.ID = binary.BigEndian.Uint16(seg[4:])
		p.Seq = binary.BigEndian.Uint16(seg[6:])
		p.Payload = seg[8:]
	default:
		p.Payload = seg[8:]
	}
	return p, nil
}

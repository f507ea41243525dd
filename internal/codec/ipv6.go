package codec

import (
	"encoding/binary"
	"net"
)

// IPv6Header carries the fields a prober needs for the fixed 40-byte IPv6
// header. IPv6 has no IP-layer fragmentation by routers (RFC 8200); a probe
// that must fragment does so with its own Fragment extension header (see
// fragment.go), which is why BuildIPv6's nextHeader argument names whatever
// comes first.
type IPv6Header struct {
	TrafficClass uint8
	FlowLabel    uint32
	HopLimit     uint8
	Src, Dst     net.IP
}

// BuildIPv6 frames an already-built L4 segment (or extension-header chain)
// inside a fixed IPv6 header.
func BuildIPv6(h IPv6Header, nextHeader byte, payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, &BuildError{"ipv6", "payload exceeds 65535 bytes"}
	}
	out := make([]byte, 40+len(payload))
	out[0] = 0x60 | (h.TrafficClass >> 4)
	out[1] = (h.TrafficClass << 4) | byte(h.FlowLabel>>16)
	binary.BigEndian.PutUint16(out[2:], uint16(h.FlowLabel))
	binary.BigEndian.PutUint16(out[4:], uint16(len(payload)))
	out[6] = nextHeader
	out[7] = h.HopLimit
	copy(out[8:24], h.Src.To16())
	copy(out[24:40], h.Dst.To16())
	copy(out[40:], payload)
	return out, nil
}

// ParsedIPv6 is the framing Parse extracts before dispatching to an L4
// parser. Extension headers beyond a Fragment header are not unwound; the
// scan core never needs to interpret Hop-by-Hop/Routing/Destination options
// on a reply.
type ParsedIPv6 struct {
	Src, Dst   net.IP
	HopLimit   uint8
	NextHeader byte
	Payload    []byte
}

func parseIPv6(pkt []byte) (*ParsedIPv6, error) {
	if len(pkt) < 40 {
		return nil, &ParseError{"ipv6", "truncated header"}
	}
	payloadLen := int(binary.BigEndian.Uint16(pkt[4:]))
	if 40+payloadLen > len(pkt) {
		return nil, &ParseError{"ipv6", "payload length exceeds packet"}
	}
	src := make(net.IP, 16)
	dst := make(net.IP, 16)
	copy(src, pkt[8:24])
	copy(dst, pkt[24:40])
	return &ParsedIPv6{
		Src:        src,
		Dst:        dst,
		HopLimit:   pkt[7],
		NextHeader: pkt[6],
		Payload:    pkt[40 : 40+payloadLen],
	}, nil
}

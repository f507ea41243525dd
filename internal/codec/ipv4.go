package codec

import (
	"net"

	"golang.org/x/net/ipv4"
)

// IPv4Header carries the fields a prober needs to control per spec.md §4.1:
// a caller-chosen or randomized IP-ID (shared across a fragment train), TTL
// (also driven by the OS-fingerprint T2-T7 probes), DF, and raw options for
// IP-level evasion.
type IPv4Header struct {
	ID       uint16
	TTL      uint8
	DontFrag bool
	MoreFrag bool
	FragOff  uint16 // in 8-byte units
	Options  []byte
	Src, Dst net.IP
}

// BuildIPv4 frames an already-built L4 segment inside an IPv4 header.
// Fragmentation is the caller's responsibility (see fragment.go); this
// function only sets the flags/offset it is given.
func BuildIPv4(h IPv4Header, protocol byte, payload []byte) ([]byte, error) {
	hdr := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen + len(h.Options),
		TotalLen: ipv4.HeaderLen + len(h.Options) + len(payload),
		ID:       int(h.ID),
		TTL:      int(h.TTL),
		Protocol: int(protocol),
		Src:      h.Src,
		Dst:      h.Dst,
		Options:  h.Options,
	}
	if h.DontFrag {
		hdr.Flags |= ipv4.DontFragment
	}
	if h.MoreFrag {
		hdr.Flags |= ipv4.MoreFragments
	}
	hdr.FragOff = int(h.FragOff)

	raw, err := hdr.Marshal()
	if err != nil {
		return nil, &BuildError{"ipv4", err.Error()}
	}
	out := make([]byte, 0, len(raw)+len(payload))
	out = append(out, raw...)
	out = append(out, payload...)
	return out, nil
}

// ParsedIPv4 is the framing Parse extracts before dispatching to an L4 parser.
type ParsedIPv4 struct {
	Src, Dst   net.IP
	TTL        uint8
	ID         uint16
	DontFrag   bool
	MoreFrag   bool
	FragOffset uint16
	Protocol   byte
	Payload    []byte
}

func parseIPv4(pkt []byte) (*ParsedIPv4, error) {
	hdr, err := ipv4.ParseHeader(pkt)
	if err != nil {
		return nil, &ParseError{"ipv4", err.Error()}
	}
	if hdr.Len > len(pkt) {
		return nil, &ParseError{"ipv4", "truncated header"}
	}
	return &ParsedIPv4{
		Src:        hdr.Src,
		Dst:        hdr.Dst,
		TTL:        uint8(hdr.TTL),
		ID:         uint16(hdr.ID),
		DontFrag:   hdr.Flags&ipv4.DontFragment != 0,
		MoreFrag:   hdr.Flags&ipv4.MoreFragments != 0,
		FragOffset: uint16(hdr.FragOff),
		Protocol:   byte(hdr.Protocol),
		Payload:    pkt[hdr.Len:],
	}, nil
}

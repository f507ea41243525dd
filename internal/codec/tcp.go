package codec

import (
	"encoding/binary"
	"net"
)

// TCP flag bits, RFC 9293 §3.1.
const (
	FlagFIN uint16 = 1 << 0
	FlagSYN uint16 = 1 << 1
	FlagRST uint16 = 1 << 2
	FlagPSH uint16 = 1 << 3
	FlagACK uint16 = 1 << 4
	FlagURG uint16 = 1 << 5
	FlagECE uint16 = 1 << 6
	FlagCWR uint16 = 1 << 7
	FlagNS  uint16 = 1 << 8
)

// TCP option kinds, RFC 9293 §3.2.
const (
	OptEOL       uint8 = 0
	OptNOP       uint8 = 1
	OptMSS       uint8 = 2
	OptWScale    uint8 = 3
	OptSACKPerm  uint8 = 4
	OptSACK      uint8 = 5
	OptTimestamp uint8 = 8
)

// TCPOption is one entry in a configurable TCP options list. Ordering is
// caller-controlled: the OS-fingerprint 16-probe matrix depends on exact
// orderings such as {MSS,WSCALE,NOP,NOP,TIMESTAMP,SACK_PERM}.
type TCPOption struct {
	Kind uint8
	Data []byte // excludes kind/length bytes; empty for EOL/NOP
}

func (o TCPOption) encodedLen() int {
	if o.Kind == OptEOL || o.Kind == OptNOP {
		return 1
	}
	return 2 + len(o.Data)
}

func encodeTCPOptions(opts []TCPOption) ([]byte, error) {
	n := 0
	for _, o := range opts {
		n += o.encodedLen()
	}
	padded := (n + 3) &^ 3
	if padded > 40 {
		return nil, &BuildError{"tcp_options", "options exceed the 40-byte maximum"}
	}
	buf := make([]byte, 0, padded)
	for _, o := range opts {
		if o.Kind == OptEOL || o.Kind == OptNOP {
			buf = append(buf, o.Kind)
			continue
		}
		buf = append(buf, o.Kind, byte(2+len(o.Data)))
		buf = append(buf, o.Data...)
	}
	for len(buf) < padded {
		buf = append(buf, OptNOP)
	}
	return buf, nil
}

// TCPHeader holds every field build_tcp needs. Options control ordering
// exactly as given; Flags is the full 9-bit field (NS included).
type TCPHeader struct {
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	Flags            uint16
	Window           uint16
	UrgentPtr        uint16
	Options          []TCPOption
	Payload          []byte
	BadSum           bool // deliberately corrupt the checksum for firewall probing
}

// BuildTCP renders a TCP segment (header + options + payload) with a
// checksum computed over the IPv4 or IPv6 pseudo-header, as specified by
// family/src/dst. --badsum flips the computed checksum's low bit so it is
// provably wrong while still looking like a checksum.
func BuildTCP(family Family, src, dst net.IP, h TCPHeader) ([]byte, error) {
	optBytes, err := encodeTCPOptions(h.Options)
	if err != nil {
		return nil, err
	}
	headerLen := 20 + len(optBytes)
	if headerLen > 60 {
		return nil, &BuildError{"tcp", "header exceeds 60 bytes"}
	}
	seg := make([]byte, headerLen+len(h.Payload))
	binary.BigEndian.PutUint16(seg[0:], h.SrcPort)
	binary.BigEndian.PutUint16(seg[2:], h.DstPort)
	binary.BigEndian.PutUint32(seg[4:], h.Seq)
	binary.BigEndian.PutUint32(seg[8:], h.Ack)

	dataOffset := headerLen / 4
	seg[12] = byte(dataOffset<<4) | byte((h.Flags>>8)&0x01)
	seg[13] = byte(h.Flags & 0xFF)
	binary.BigEndian.PutUint16(seg[14:], h.Window)
	// seg[16:18] checksum, filled below
	binary.BigEndian.PutUint16(seg[18:], h.UrgentPtr)
	copy(seg[20:], optBytes)
	copy(seg[headerLen:], h.Payload)

	csum := l4Checksum(family, src, dst, protoTCP, seg)
	if h.BadSum {
		csum ^= 0x0001
	}
	binary.BigEndian.PutUint16(seg[16:], csum)
	return seg, nil
}

// ParsedTCP is what Parse extracts from a TCP segment.
type ParsedTCP struct {
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	Flags            uint16
	Window           uint16
	Options          []TCPOption
	Payload          []byte
}

func parseTCP(seg []byte) (*ParsedTCP, error) {
	if len(seg) < 20 {
		return nil, &ParseError{"tcp", "truncated header"}
	}
	dataOffset := int(seg[12]>>4) * 4
	if dataOffset < 20 || dataOffset > len(seg) {
		return nil, &ParseError{"tcp", "invalid data offset"}
	}
	p := &ParsedTCP{
		SrcPort: binary.BigEndian.Uint16(seg[0:]),
		DstPort: binary.BigEndian.Uint16(seg[2:]),
		Seq:     binary.BigEndian.Uint32(seg[4:]),
		Ack:     binary.BigEndian.Uint32(seg[8:]),
		Flags:   uint16(seg[13]) | (uint16(seg[12]&0x01) << 8),
		Window:  binary.BigEndian.Uint16(seg[14:]),
		Payload: seg[dataOffset:],
	}
	opts := seg[20:dataOffset]
	for i := 0; i < len(opts); {
		kind := opts[i]
		if kind == OptEOL {
			break
		}
		if kind == OptNOP {
			p.Options = append(p.Options, TCPOption{Kind: kind})
			i++
			continue
		}
		if i+1 >= len(opts) {
			return nil, &ParseError{"tcp", "truncated option"}
		}
		l := int(opts[i+1])
		if l < 2 || i+l > len(opts) {
			return nil, &ParseError{"tcp", "invalid option length"}
		}
		p.Options = append(p.Options, TCPOption{Kind: kind, Data: opts[i+2 : i+l]})
		i += l
	}
	return p, nil
}

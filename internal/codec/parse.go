package codec

// L4Kind names which parser ran.
type L4Kind uint8

const (
	L4Unknown L4Kind = iota
	L4TCP
	L4UDP
	L4ICMP
	L4ICMPv6
)

// ParsedPacket is the typed sum Parse returns: exactly one of the L4Kind
// fields is populated, matching Kind/Family.
type ParsedPacket struct {
	Family Family
	Kind   L4Kind

	IPv4 *ParsedIPv4
	IPv6 *ParsedIPv6

	TCP    *ParsedTCP
	UDP    *ParsedUDP
	ICMP   *ParsedICMP
	ICMPv6 *ParsedICMPv6
}

// Parse dispatches a captured packet to the right framing and L4 parser by
// inspecting the leading version nibble, then the protocol/next-header
// field. It is the entry point internal/pipeline's Receiver uses to
// interpret a raw capture.
func Parse(pkt []byte) (*ParsedPacket, error) {
	if len(pkt) < 1 {
		return nil, &ParseError{"packet", "empty"}
	}
	version := pkt[0] >> 4
	switch version {
	case 4:
		return parseV4Packet(pkt)
	case 6:
		return parseV6Packet(pkt)
	default:
		return nil, &ParseError{"packet", "unrecognized IP version"}
	}
}

func parseV4Packet(pkt []byte) (*ParsedPacket, error) {
	ip, err := parseIPv4(pkt)
	if err != nil {
		return nil, err
	}
	out := &ParsedPacket{Family: V4, IPv4: ip}
	switch ip.Protocol {
	case protoTCP:
		tcp, err := parseTCP(ip.Payload)
		if err != nil {
			return nil, err
		}
		out.Kind, out.TCP = L4TCP, tcp
	case protoUDP:
		udp, err := parseUDP(ip.Payload)
		if err != nil {
			return nil, err
		}
		out.Kind, out.UDP = L4UDP, udp
	case protoICMP:
		icmp, err := parseICMP(ip.Payload)
		if err != nil {
			return nil, err
		}
		out.Kind, out.ICMP = L4ICMP, icmp
	default:
		out.Kind = L4Unknown
	}
	return out, nil
}

func parseV6Packet(pkt []byte) (*ParsedPacket, error) {
	ip, err := parseIPv6(pkt)
	if err != nil {
		return nil, err
	}
	out := &ParsedPacket{Family: V6, IPv6: ip}
	nextHeader := ip.NextHeader
	payload := ip.Payload
	// Unwind a Fragment header (44) when it is the sole extension present;
	// reassembly of a full fragment train is the pipeline's job, not the
	// codec's — this only lets a single-fragment reply parse cleanly.
	if nextHeader == 44 && len(payload) >= 8 {
		nextHeader = payload[0]
		payload = payload[8:]
	}
	switch nextHeader {
	case protoTCP:
		tcp, err := parseTCP(payload)
		if err != nil {
			return nil, err
		}
		out.Kind, out.TCP = L4TCP, tcp
	case protoUDP:
		udp, err := parseUDP(payload)
		if err != nil {
			return nil, err
		}
		out.Kind, out.UDP = L4UDP, udp
	case protoICMPv6:
		icmp6, err := parseICMPv6(payload)
		if err != nil {
			return nil, err
		}
		out.Kind, out.ICMPv6 = L4ICMPv6, icmp6
	default:
		out.Kind = L4Unknown
	}
	return out, nil
}

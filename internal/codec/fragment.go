package codec

// FragmentIPv4 splits an already-built L4 segment into a train of IPv4
// packets under mtu bytes each, honoring the 8-byte fragment-offset
// granularity (RFC 791 §3.1). Every fragment shares h.ID and the caller's
// choice of TTL/options; only MoreFrag/FragOff/TotalLen vary per piece.
// mtu below 28 (20-byte header + 8-byte minimum segment) is rejected since
// it cannot carry a single 8-byte unit.
func FragmentIPv4(h IPv4Header, protocol byte, segment []byte, mtu int) ([][]byte, error) {
	headerLen := 20 + len(h.Options)
	maxData := (mtu - headerLen) &^ 7
	if maxData < 8 {
		return nil, &BuildError{"fragment", "mtu too small to carry an 8-byte unit"}
	}
	var out [][]byte
	for off := 0; off < len(segment); off += maxData {
		end := off + maxData
		more := true
		if end >= len(segment) {
			end = len(segment)
			more = false
		}
		frag := h
		frag.MoreFrag = more
		frag.FragOff = uint16(off / 8)
		pkt, err := BuildIPv4(frag, protocol, segment[off:end])
		if err != nil {
			return nil, err
		}
		out = append(out, pkt)
	}
	return out, nil
}

// FragmentIPv6 splits a payload into an IPv6 Fragment extension header
// (RFC 8200 §4.5) train. Each fragment keeps the 8-byte offset granularity;
// the identification field is shared across the whole train exactly as
// with IPv4's IP-ID.
func FragmentIPv6(h IPv6Header, nextHeader byte, identification uint32, segment []byte, mtu int) ([][]byte, error) {
	maxData := (mtu - 40 - 8) &^ 7
	if maxData < 8 {
		return nil, &BuildError{"fragment", "mtu too small to carry an 8-byte unit"}
	}
	var out [][]byte
	for off := 0; off < len(segment); off += maxData {
		end := off + maxData
		more := true
		if end >= len(segment) {
			end = len(segment)
			more = false
		}
		fragHdr := make([]byte, 8+(end-off))
		fragHdr[0] = nextHeader
		fragHdr[1] = 0
		offsetFlags := uint16(off/8) << 3
		if more {
			offsetFlags |= 1
		}
		fragHdr[2] = byte(offsetFlags >> 8)
		fragHdr[3] = byte(offsetFlags)
		putUint32(fragHdr[4:], identification)
		copy(fragHdr[8:], segment[off:end])

		pkt, err := BuildIPv6(h, 44, fragHdr) // 44 = Fragment header
		if err != nil {
			return nil, err
		}
		out = append(out, pkt)
	}
	return out, nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

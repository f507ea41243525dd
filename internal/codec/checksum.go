package codec

import (
	"encoding/binary"
	"net"
)

// Checksum computes the 16-bit one's-complement Internet checksum (RFC 1071)
// over data. It is the building block for every IPv4/TCP/UDP/ICMP checksum
// in this package.
func Checksum(data []byte) uint16 {
	var sum uint32
	n := len(data)
	i := 0
	for n > 1 {
		sum += uint32(binary.BigEndian.Uint16(data[i:]))
		i += 2
		n -= 2
	}
	if n > 0 {
		sum += uint32(data[i]) << 8
	}
	for sum>>16 > 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// pseudoHeaderV4 builds the RFC 793/768 IPv4 pseudo-header used as the
// checksum seed for TCP and UDP.
func pseudoHeaderV4(src, dst net.IP, proto byte, l4Len int) []byte {
	ph := make([]byte, 12)
	copy(ph[0:4], src.To4())
	copy(ph[4:8], dst.To4())
	ph[8] = 0
	ph[9] = proto
	binary.BigEndian.PutUint16(ph[10:], uint16(l4Len))
	return ph
}

// pseudoHeaderV6 builds the RFC 8200 §8.1 IPv6 pseudo-header.
func pseudoHeaderV6(src, dst net.IP, nextHeader byte, l4Len int) []byte {
	ph := make([]byte, 40)
	copy(ph[0:16], src.To16())
	copy(ph[16:32], dst.To16())
	binary.BigEndian.PutUint32(ph[32:36], uint32(l4Len))
	ph[39] = nextHeader
	return ph
}

// l4Checksum computes the pseudo-header-seeded checksum for a TCP/UDP/ICMPv6
// segment. family selects the pseudo-header shape.
func l4Checksum(family Family, src, dst net.IP, proto byte, segment []byte) uint16 {
	var ph []byte
	if family == V6 {
		ph = pseudoHeaderV6(src, dst, proto, len(segment))
	} else {
		ph = pseudoHeaderV4(src, dst, proto, len(segment))
	}
	buf := make([]byte, 0, len(ph)+len(segment))
	buf = append(buf, ph...)
	buf = append(buf, segment...)
	return Checksum(buf)
}

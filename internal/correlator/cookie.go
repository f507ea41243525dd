package correlator

import (
	"crypto/rand"
	"encoding/binary"
	"net"

	"github.com/dchest/siphash"
)

// CookieGen produces stateless per-probe cookies from a process-lifetime
// 128-bit SipHash key (spec.md §4.2): memory stays O(1) regardless of how
// many probes are outstanding, because a reply is verified against the key
// instead of looked up in a table.
type CookieGen struct {
	k0, k1 uint64
}

// NewCookieGen seeds a fresh random key. One instance is shared across an
// entire stateless scan; rotating it mid-scan would invalidate every probe
// still in flight.
func NewCookieGen() (*CookieGen, error) {
	var key [16]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	return &CookieGen{
		k0: binary.LittleEndian.Uint64(key[0:8]),
		k1: binary.LittleEndian.Uint64(key[8:16]),
	}, nil
}

// Cookie derives a 32-bit value from the destination address and port plus a salt
// (typically the scan's source port, to separate concurrent scan runs
// sharing one key). Folded into the TCP initial sequence number for SYN
// probes, or into the IP-ID for non-TCP probes where the protocol allows.
func (g *CookieGen) Cookie(dstIP net.IP, dstPort uint16, salt uint16) uint32 {
	buf := make([]byte, 0, 18)
	buf = append(buf, dstIP.To16()...)
	buf = append(buf, byte(dstPort>>8), byte(dstPort))
	buf = append(buf, byte(salt>>8), byte(salt))
	h := siphash.Hash(g.k0, g.k1, buf)
	return uint32(h)
}

// Verify reports whether ack is exactly cookie+1 for the given destination,
// the check the spec requires before trusting a SYN-ACK or RST as a reply
// to our own probe rather than backscatter.
func (g *CookieGen) Verify(dstIP net.IP, dstPort uint16, salt uint16, ack uint32) bool {
	return ack == g.Cookie(dstIP, dstPort, salt)+1
}

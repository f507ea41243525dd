// Package model holds the data types shared by every scan-engine component:
// targets, port sets, outstanding probes, and the results/fingerprints they
// produce.
package model

import (
	"fmt"
	"net"
)

// Family is an address family tag.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	if f == FamilyV6 {
		return "v6"
	}
	return "v4"
}

// Protocol is a transport-layer protocol tag used throughout the engine.
type Protocol uint8

const (
	ProtoTCP Protocol = iota
	ProtoUDP
)

func (p Protocol) String() string {
	if p == ProtoUDP {
		return "udp"
	}
	return "tcp"
}

// Target is a single endpoint to probe: an address plus the port set that
// will be swept against it. Targets are produced once at startup by target
// expansion and are not modified afterward.
type Target struct {
	Family   Family
	Addr     net.IP
	Hostname string // optional, set when the target came from a DNS name
	Ports    *PortSet
}

func (t *Target) String() string {
	if t.Hostname != "" {
		return fmt.Sprintf("%s (%s)", t.Addr, t.Hostname)
	}
	return t.Addr.String()
}

// Key returns a stable identifier suitable for map keys (connection tables,
// hostgroup membership, rate state lookups).
func (t *Target) Key() string {
	return t.Addr.String()
}

// IsV4 reports whether the target's address is a 4-byte-representable IPv4
// address, mirroring net.IP.To4's nil-on-failure semantics.
func (t *Target) IsV4() bool {
	return t.Family == FamilyV4 && t.Addr.To4() != nil
}

package model

import (
	"net"
	"time"
)

// ScanType tags the probe technique in flight, matching the CLI's -s* flags.
type ScanType uint8

const (
	ScanConnect ScanType = iota
	ScanSyn
	ScanUdp
	ScanFin
	ScanNull
	ScanXmas
	ScanAck
	ScanWindow
	ScanIdleSpoofed
)

func (s ScanType) String() string {
	switch s {
	case ScanConnect:
		return "connect"
	case ScanSyn:
		return "syn"
	case ScanUdp:
		return "udp"
	case ScanFin:
		return "fin"
	case ScanNull:
		return "null"
	case ScanXmas:
		return "xmas"
	case ScanAck:
		return "ack"
	case ScanWindow:
		return "window"
	case ScanIdleSpoofed:
		return "idle"
	default:
		return "unknown"
	}
}

// Probe is an outstanding transmission. For stateless sweeps, probes are not
// allocated at all: the cookie carries everything the correlator needs to
// verify a reply, so there is nothing to own. The stateful connection table
// (internal/correlator) holds Probe values for Connect/service-detect/
// OS-fingerprint/idle scans.
type Probe struct {
	Target     *Target
	Port       uint16
	Protocol   Protocol
	ScanType   ScanType
	Cookie     uint32
	SrcPort    uint16
	TimeSent   time.Time
	RetryCount int
	TTLUsed    uint8
}

// ConnectionKey is the four-tuple the stateful path demuxes replies by.
type ConnectionKey struct {
	SrcIP   [16]byte // IPv4 addresses are stored left-padded/mapped via To16
	SrcPort uint16
	DstIP   [16]byte
	DstPort uint16
}

// NewConnectionKey builds a ConnectionKey from a probe's 4-tuple.
func NewConnectionKey(srcIP, dstIP net.IP, srcPort, dstPort uint16) ConnectionKey {
	var k ConnectionKey
	copy(k.SrcIP[:], srcIP.To16())
	copy(k.DstIP[:], dstIP.To16())
	k.SrcPort = srcPort
	k.DstPort = dstPort
	return k
}

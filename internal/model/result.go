package model

import (
	"time"
)

// PortState is the inferred state of one (target, port, protocol) triple.
type PortState uint8

const (
	StateUnknown PortState = iota
	StateOpen
	StateClosed
	StateFiltered
	StateOpenFiltered
	StateClosedFiltered
	StateUnfiltered
)

func (s PortState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFiltered:
		return "filtered"
	case StateOpenFiltered:
		return "open|filtered"
	case StateClosedFiltered:
		return "closed|filtered"
	case StateUnfiltered:
		return "unfiltered"
	default:
		return "unknown"
	}
}

// ServiceInfo is what the detection core learned about the service behind an
// open port. Confidence is in [0,1]; a port-based fallback guess never
// exceeds 0.4, the generic regex matcher (NULL-probe matches included) sits
// at or below 0.85, and a protocol fast path can reach 1.0.
type ServiceInfo struct {
	Name       string
	Product    string
	Version    string
	ExtraInfo  string
	CPE        string
	OSHint     string
	Confidence float64
}

// ScanResult is an immutable, append-only record of one probe's outcome.
type ScanResult struct {
	Target    *Target
	Port      uint16
	Protocol  Protocol
	State     PortState
	RTT       time.Duration
	ReplyTTL  uint8
	Service   *ServiceInfo // nil until -sV follow-up runs (or never, if closed)
	Banner    string
	Timestamp time.Time
}

// Accounting is the per-target/per-port bookkeeping invariant from spec.md
// §3: sent == open + closed + filtered + openfiltered + unfiltered + errored
// (+ in_flight while the scan is still running).
type Accounting struct {
	Sent           uint64
	Open           uint64
	Closed         uint64
	Filtered       uint64
	OpenFiltered   uint64
	ClosedFiltered uint64
	Unfiltered     uint64
	Errored        uint64
	InFlight       uint64
}

// Settled reports the count of probes that have reached a terminal state.
func (a *Accounting) Settled() uint64 {
	return a.Open + a.Closed + a.Filtered + a.OpenFiltered + a.ClosedFiltered + a.Unfiltered + a.Errored
}

// Balanced reports the monotonic-accounting invariant: every sent probe is
// either still in flight or has settled into exactly one terminal bucket.
func (a *Accounting) Balanced() bool {
	return a.Sent == a.Settled()+a.InFlight
}

// Record folds a terminal ScanResult's state into the accounting totals.
func (a *Accounting) Record(state PortState) {
	switch state {
	case StateOpen:
		a.Open++
	case StateClosed:
		a.Closed++
	case StateFiltered:
		a.Filtered++
	case StateOpenFiltered:
		a.OpenFiltered++
	case StateClosedFiltered:
		a.ClosedFiltered++
	case StateUnfiltered:
		a.Unfiltered++
	}
}

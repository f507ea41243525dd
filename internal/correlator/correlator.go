package correlator

import (
	"time"

	"scancore/internal/model"
)

// Correlator is the shared capability set both strategies implement
// (spec.md §4.2/§8): a scan selects one at construction time based on its
// ScanType, and the pipeline never needs to know which.
type Correlator interface {
	// AcceptReply classifies one parsed packet against outstanding probe
	// state (or a stateless cookie check) and returns a terminal or
	// non-terminal verdict. ok is false when the reply does not correspond
	// to any probe we sent and should be dropped.
	AcceptReply(Reply) (model.ScanResult, bool)

	// ExpireOld sweeps probes whose timeout budget has elapsed, emitting a
	// Filtered/OpenFiltered result for each and releasing any state held.
	ExpireOld(now time.Time) []model.ScanResult

	// CurrentDepth reports outstanding probe count; O(1) for the stateless
	// strategy (always 0), the live map size for the stateful one.
	CurrentDepth() int
}

// Reply is the subset of a parsed packet the correlator needs, already
// stripped of its IP framing by the pipeline's receive loop.
type Reply struct {
	SrcIP    []byte
	SrcPort  uint16
	DstIP    []byte
	DstPort  uint16
	Seq, Ack uint32
	Flags    uint16
	IsICMP   bool
	ICMPType uint8
	ICMPCode uint8
	ReplyTTL uint8
	Received time.Time
}

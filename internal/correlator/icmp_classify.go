package correlator

import (
	"scancore/internal/codec"
	"scancore/internal/model"
)

// ClassifyICMPUnreachable applies spec.md §4.2's edge-case table: ICMP
// Destination Unreachable codes 1 (host), 2 (protocol), 3 (port), 9 (net
// prohibited), 10 (host prohibited), 13 (admin prohibited) against a sent
// TCP probe always mean Filtered; code 3 against a sent UDP probe means
// Closed (RFC 1122), since the kernel on the far end only generates it when
// nothing is listening.
func ClassifyICMPUnreachable(scanType model.ScanType, code uint8) (model.PortState, bool) {
	switch code {
	case codec.ICMPCodeHostUnreachable, codec.ICMPCodeProtoUnreachable,
		codec.ICMPCodeNetProhibited, codec.ICMPCodeHostProhibited, codec.ICMPCodeAdminProhibited:
		return model.StateFiltered, true
	case codec.ICMPCodePortUnreachable:
		if scanType == model.ScanUdp {
			return model.StateClosed, true
		}
		return model.StateFiltered, true
	default:
		return model.StateUnknown, false
	}
}

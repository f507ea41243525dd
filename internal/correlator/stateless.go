package correlator

import (
	"net"
	"time"

	"scancore/internal/model"
)

// Stateless implements the cookie-verified correlator used for SYN sweeps
// at scale and for the stealth scan types (FIN/NULL/Xmas/ACK), none of
// which need outstanding per-probe state: a SYN-ACK/RST is trusted only if
// its ack matches our cookie, and a stealth-scan RST/no-reply is trusted by
// 4-tuple match alone since those probes carry no sequence number to forge
// against.
//
// "No reply after the timeout window" is not detected here: that requires
// knowing what was sent, which the Scan Pipeline already tracks as the
// target's PortSet (it must, to know when a target is exhausted). ExpireOld
// is therefore a no-op for this strategy; the pipeline calls
// model.Accounting bookkeeping directly when its per-port deadline lapses.
type Stateless struct {
	cookies  *CookieGen
	scanType model.ScanType
	salt     uint16
}

func NewStateless(cookies *CookieGen, scanType model.ScanType, salt uint16) *Stateless {
	return &Stateless{cookies: cookies, scanType: scanType, salt: salt}
}

func (s *Stateless) AcceptReply(r Reply) (model.ScanResult, bool) {
	if r.IsICMP {
		return s.classifyICMP(r)
	}
	switch s.scanType {
	case model.ScanSyn:
		return s.classifySyn(r)
	case model.ScanAck:
		return s.classifyAck(r)
	case model.ScanFin, model.ScanNull, model.ScanXmas:
		return s.classifyStealth(r)
	default:
		return model.ScanResult{}, false
	}
}

func (s *Stateless) classifySyn(r Reply) (model.ScanResult, bool) {
	dstIP := net.IP(r.SrcIP) // the reply's source is our probe's destination
	if !s.cookies.Verify(dstIP, r.SrcPort, s.salt, r.Ack) {
		return model.ScanResult{}, false
	}
	res := model.ScanResult{Timestamp: r.Received, ReplyTTL: r.ReplyTTL}
	switch {
	case r.Flags&0x12 == 0x12: // SYN+ACK
		res.State = model.StateOpen
	case r.Flags&0x04 != 0: // RST
		res.State = model.StateClosed
	default:
		return model.ScanResult{}, false
	}
	return res, true
}

func (s *Stateless) classifyAck(r Reply) (model.ScanResult, bool) {
	if r.Flags&0x04 == 0 { // only RST is meaningful for an ACK probe
		return model.ScanResult{}, false
	}
	return model.ScanResult{Timestamp: r.Received, ReplyTTL: r.ReplyTTL, State: model.StateUnfiltered}, true
}

// classifyStealth handles FIN/NULL/Xmas: RFC 793 says a closed port RSTs, an
// open port stays silent. A silent open port never reaches this function —
// it is only ever observed as a pipeline-side timeout.
func (s *Stateless) classifyStealth(r Reply) (model.ScanResult, bool) {
	if r.Flags&0x04 == 0 {
		return model.ScanResult{}, false
	}
	return model.ScanResult{Timestamp: r.Received, ReplyTTL: r.ReplyTTL, State: model.StateClosed}, true
}

func (s *Stateless) classifyICMP(r Reply) (model.ScanResult, bool) {
	state, ok := ClassifyICMPUnreachable(s.scanType, r.ICMPCode)
	if !ok {
		return model.ScanResult{}, false
	}
	return model.ScanResult{Timestamp: r.Received, ReplyTTL: r.ReplyTTL, State: state}, true
}

func (s *Stateless) ExpireOld(now time.Time) []model.ScanResult { return nil }

func (s *Stateless) CurrentDepth() int { return 0 }

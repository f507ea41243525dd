package correlator

import (
	"net"
	"sync"
	"time"

	"scancore/internal/model"
)

// entry is one outstanding probe's tracked state.
type entry struct {
	probe      model.Probe
	sentAt     time.Time
	retries    int
	settled    bool // terminal state already emitted; later replies are dropped
}

// OnRTT is called with every measured round-trip so the caller (normally
// ratecontrol.Controller.RecordRTT) can feed it back into the shared SRTT
// estimator, per spec.md §4.2.
type OnRTT func(time.Duration)

// Stateful implements the connection-table correlator used for Connect
// scans, service detection, OS fingerprinting, and idle scans — anything
// that needs to remember what it sent because the reply alone (no cookie)
// cannot prove provenance.
type Stateful struct {
	mu           sync.Mutex
	table        map[model.ConnectionKey]*entry
	retransmitBudget int
	timeout      func() time.Duration
	onRTT        OnRTT
}

func NewStateful(retransmitBudget int, timeout func() time.Duration, onRTT OnRTT) *Stateful {
	if timeout == nil {
		timeout = func() time.Duration { return 10 * time.Second }
	}
	return &Stateful{
		table:            make(map[model.ConnectionKey]*entry),
		retransmitBudget: retransmitBudget,
		timeout:          timeout,
		onRTT:            onRTT,
	}
}

// Track registers a freshly sent probe under its ConnectionKey.
func (s *Stateful) Track(key model.ConnectionKey, p model.Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.table[key]; ok {
		e.probe = p
		e.sentAt = p.TimeSent
		return
	}
	s.table[key] = &entry{probe: p, sentAt: p.TimeSent}
}

func (s *Stateful) AcceptReply(r Reply) (model.ScanResult, bool) {
	key := model.NewConnectionKey(net.IP(r.DstIP), net.IP(r.SrcIP), r.DstPort, r.SrcPort)
	s.mu.Lock()
	e, ok := s.table[key]
	if !ok {
		s.mu.Unlock()
		return model.ScanResult{}, false
	}
	if e.settled {
		// Duplicate reply: first wins, every later one is dropped.
		s.mu.Unlock()
		return model.ScanResult{}, false
	}

	res := model.ScanResult{
		Target:   e.probe.Target,
		Port:     e.probe.Port,
		Protocol: e.probe.Protocol,
		Timestamp: r.Received,
		ReplyTTL:  r.ReplyTTL,
	}

	terminal := false
	switch {
	case r.IsICMP:
		state, matched := ClassifyICMPUnreachable(e.probe.ScanType, r.ICMPCode)
		if !matched {
			s.mu.Unlock()
			return model.ScanResult{}, false
		}
		res.State = state
		terminal = true
	case r.Flags&0x12 == 0x12: // SYN+ACK
		res.State = model.StateOpen
		terminal = true
	case r.Flags&0x04 != 0: // RST: Closed. A RST arriving after we already
		// settled this entry Open (our own teardown, or a late duplicate)
		// never reaches here — ok is already false once the entry is
		// deleted, which is what keeps Open from flipping to Closed.
		res.State = model.StateClosed
		terminal = true
	case r.Flags&0x10 != 0 && e.probe.ScanType == model.ScanConnect:
		res.State = model.StateOpen
		terminal = true
	default:
		s.mu.Unlock()
		return model.ScanResult{}, false
	}

	rtt := r.Received.Sub(e.sentAt)
	if terminal {
		e.settled = true
		delete(s.table, key)
	}
	s.mu.Unlock()

	if s.onRTT != nil && rtt > 0 {
		s.onRTT(rtt)
	}
	res.RTT = rtt
	return res, true
}

// ExpireOld sweeps every tracked probe whose deadline has lapsed. A probe
// under its retransmit budget is left in place for the pipeline to resend;
// one that has exhausted it is removed and reported Filtered (or
// OpenFiltered for UDP, since a silent UDP port is ambiguous).
func (s *Stateful) ExpireOld(now time.Time) []model.ScanResult {
	deadline := s.timeout()
	var out []model.ScanResult
	s.mu.Lock()
	for key, e := range s.table {
		if e.settled || now.Sub(e.sentAt) < deadline {
			continue
		}
		if e.retries < s.retransmitBudget {
			e.retries++
			e.sentAt = now
			continue
		}
		state := model.StateFiltered
		if e.probe.Protocol == model.ProtoUDP {
			state = model.StateOpenFiltered
		}
		out = append(out, model.ScanResult{
			Target:    e.probe.Target,
			Port:      e.probe.Port,
			Protocol:  e.probe.Protocol,
			State:     state,
			Timestamp: now,
		})
		delete(s.table, key)
	}
	s.mu.Unlock()
	return out
}

func (s *Stateful) CurrentDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table)
}

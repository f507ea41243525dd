package ratecontrol

import (
	"math"
	"sync/atomic"
	"time"
)

// targetState is one active target's Tier 2 rate state. All counters are
// accessed with Relaxed-equivalent atomics (Go's atomic package has no
// memory-order parameter; plain atomic.*  already compiles to the loosest
// ordering the platform allows): the controller is designed to tolerate a
// stale read because the next hostgroup window overwrites it regardless.
type targetState struct {
	targetRate   atomic.Uint64 // bits of float64, probes/sec quota
	sentInWindow atomic.Uint64
	measuredRate atomic.Uint64 // bits of float64, EWMA probes/sec
	windowStart  atomic.Int64  // unix nanos
	backoffUntil atomic.Int64  // unix nanos; 0 means not backed off
	consecutive  atomic.Int32  // consecutive ICMP back-pressure hits
}

func newTargetState(initialRate float64) *targetState {
	s := &targetState{}
	s.targetRate.Store(math.Float64bits(initialRate))
	s.windowStart.Store(time.Now().UnixNano())
	return s
}

func (s *targetState) rate() float64      { return math.Float64frombits(s.targetRate.Load()) }
func (s *targetState) setRate(r float64)  { s.targetRate.Store(math.Float64bits(r)) }
func (s *targetState) measured() float64  { return math.Float64frombits(s.measuredRate.Load()) }
func (s *targetState) setMeasured(r float64) {
	s.measuredRate.Store(math.Float64bits(r))
}

// admit reports whether a probe may be sent right now: actual_rate must stay
// below target_rate * tolerance (spec.md §4.3 Tier 2). tolerance is folded
// in by the caller (the controller) so this stays a pure comparison.
func (s *targetState) admit(now time.Time, tolerance float64) bool {
	if until := s.backoffUntil.Load(); until != 0 && now.UnixNano() < until {
		return false
	}
	elapsed := now.Sub(time.Unix(0, s.windowStart.Load())).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-6
	}
	actual := float64(s.sentInWindow.Load()) / elapsed
	return actual < s.rate()*tolerance
}

func (s *targetState) recordSend() {
	s.sentInWindow.Add(1)
}

// rollWindow folds the just-completed window into the EWMA measured rate
// and resets the sent counter, marking the start of a fresh window.
func (s *targetState) rollWindow(now time.Time, ewmaAlpha float64) {
	elapsed := now.Sub(time.Unix(0, s.windowStart.Load())).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-6
	}
	observed := float64(s.sentInWindow.Load()) / elapsed
	prev := s.measured()
	if prev == 0 {
		s.setMeasured(observed)
	} else {
		s.setMeasured((1-ewmaAlpha)*prev + ewmaAlpha*observed)
	}
	s.sentInWindow.Store(0)
	s.windowStart.Store(now.UnixNano())
}

// icmpBackoff applies RFC-style exponential back-pressure on receipt of an
// ICMP administratively-prohibited or host/net-prohibited reply targeting a
// probe we sent to this destination (spec.md §4.3): 2s, 4s, 8s, capped 16s.
func (s *targetState) icmpBackoff(now time.Time) time.Duration {
	n := s.consecutive.Add(1)
	wait := 2 * time.Second * time.Duration(1<<uint(min32(n-1, 3)))
	if wait > 16*time.Second {
		wait = 16 * time.Second
	}
	s.backoffUntil.Store(now.Add(wait).UnixNano())
	return wait
}

func (s *targetState) clearBackoff() {
	s.consecutive.Store(0)
	s.backoffUntil.Store(0)
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

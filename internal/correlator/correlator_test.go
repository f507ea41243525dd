package correlator

import (
	"net"
	"testing"
	"time"

	"scancore/internal/model"
)

func TestCookieVerifyRoundTrip(t *testing.T) {
	gen, err := NewCookieGen()
	if err != nil {
		t.Fatalf("NewCookieGen: %v", err)
	}
	dst := net.ParseIP("192.0.2.5")
	cookie := gen.Cookie(dst, 80, 1234)
	if !gen.Verify(dst, 80, 1234, cookie+1) {
		t.Error("Verify rejected a correctly derived ack")
	}
	if gen.Verify(dst, 80, 1234, cookie+2) {
		t.Error("Verify accepted a wrong ack")
	}
}

func TestStatelessSynOpenAndClosed(t *testing.T) {
	gen, _ := NewCookieGen()
	s := NewStateless(gen, model.ScanSyn, 1)
	dst := net.ParseIP("192.0.2.5").To16()
	cookie := gen.Cookie(net.IP(dst), 80, 1)

	openReply := Reply{SrcIP: dst, SrcPort: 80, Ack: cookie + 1, Flags: 0x12}
	res, ok := s.AcceptReply(openReply)
	if !ok || res.State != model.StateOpen {
		t.Fatalf("expected Open, got %v ok=%v", res.State, ok)
	}

	closedReply := Reply{SrcIP: dst, SrcPort: 80, Ack: cookie + 1, Flags: 0x04}
	res, ok = s.AcceptReply(closedReply)
	if !ok || res.State != model.StateClosed {
		t.Fatalf("expected Closed, got %v ok=%v", res.State, ok)
	}
}

func TestStatelessSynRejectsForgedAck(t *testing.T) {
	gen, _ := NewCookieGen()
	s := NewStateless(gen, model.ScanSyn, 1)
	dst := net.ParseIP("192.0.2.5").To16()
	_, ok := s.AcceptReply(Reply{SrcIP: dst, SrcPort: 80, Ack: 999, Flags: 0x12})
	if ok {
		t.Error("forged ack should not verify")
	}
}

func TestStatefulTrackAndAccept(t *testing.T) {
	s := NewStateful(2, func() time.Duration { return time.Second }, nil)
	target := &model.Target{Addr: net.ParseIP("192.0.2.9")}
	probe := model.Probe{Target: target, Port: 443, ScanType: model.ScanConnect, TimeSent: time.Now()}
	key := model.NewConnectionKey(net.ParseIP("192.0.2.1"), target.Addr, 40000, 443)
	s.Track(key, probe)

	if d := s.CurrentDepth(); d != 1 {
		t.Fatalf("CurrentDepth = %d, want 1", d)
	}

	reply := Reply{
		SrcIP: target.Addr.To16(), SrcPort: 443,
		DstIP: net.ParseIP("192.0.2.1").To16(), DstPort: 40000,
		Flags: 0x12, Received: time.Now(),
	}
	res, ok := s.AcceptReply(reply)
	if !ok || res.State != model.StateOpen {
		t.Fatalf("expected Open, got %v ok=%v", res.State, ok)
	}
	if s.CurrentDepth() != 0 {
		t.Error("terminal reply should remove the tracked entry")
	}

	// duplicate reply after settlement must be dropped
	if _, ok := s.AcceptReply(reply); ok {
		t.Error("duplicate reply should be dropped")
	}
}

func TestStatefulExpireOldHonorsRetransmitBudget(t *testing.T) {
	s := NewStateful(1, func() time.Duration { return 0 }, nil)
	target := &model.Target{Addr: net.ParseIP("192.0.2.9")}
	probe := model.Probe{Target: target, Port: 22, ScanType: model.ScanConnect, TimeSent: time.Now().Add(-time.Hour)}
	key := model.NewConnectionKey(net.ParseIP("192.0.2.1"), target.Addr, 40000, 22)
	s.Track(key, probe)

	results := s.ExpireOld(time.Now())
	if len(results) != 0 {
		t.Fatalf("first expiry should retry, not emit: got %d results", len(results))
	}
	results = s.ExpireOld(time.Now())
	if len(results) != 1 || results[0].State != model.StateFiltered {
		t.Fatalf("second expiry should emit Filtered: got %+v", results)
	}
}

package ratecontrol

import (
	"testing"
	"time"
)

func TestTemplateByIndexClampsOutOfRange(t *testing.T) {
	if got := TemplateByIndex(-1); got.Name != T0.Name {
		t.Errorf("TemplateByIndex(-1) = %s, want T0", got.Name)
	}
	if got := TemplateByIndex(99); got.Name != T5.Name {
		t.Errorf("TemplateByIndex(99) = %s, want T5", got.Name)
	}
	if got := TemplateByIndex(3); got.Name != T3.Name {
		t.Errorf("TemplateByIndex(3) = %s, want T3", got.Name)
	}
}

func TestRTTEstimatorConverges(t *testing.T) {
	e := NewRTTEstimator()
	if e.Timeout() != defaultInitialRTO {
		t.Fatalf("initial RTO = %v, want %v", e.Timeout(), defaultInitialRTO)
	}
	e.Update(100 * time.Millisecond)
	if got := e.Timeout(); got != 300*time.Millisecond {
		t.Errorf("RTO after first sample = %v, want 300ms", got)
	}
}

func TestControllerAdmitsWithinHostgroup(t *testing.T) {
	c := New(Config{Template: T3, MaxRate: 1000, MinHostgroup: 2, MaxHostgroup: 2})
	allowed, full := c.Admit("10.0.0.1")
	if full {
		t.Fatal("window reported full with room available")
	}
	if !allowed {
		t.Fatal("first probe to a fresh target should be admitted")
	}
	c.Admit("10.0.0.2")
	_, full = c.Admit("10.0.0.3")
	if !full {
		t.Fatal("third target should not fit in a max-hostgroup-2 window")
	}
}

func TestControllerRetireFreesSlot(t *testing.T) {
	c := New(Config{Template: T3, MaxRate: 1000, MinHostgroup: 1, MaxHostgroup: 1})
	c.Admit("a")
	if _, full := c.Admit("b"); !full {
		t.Fatal("expected window full before retiring a")
	}
	c.Retire("a")
	if _, full := c.Admit("b"); full {
		t.Fatal("expected room after retiring a")
	}
}

func TestControllerICMPBackoffSuspendsTarget(t *testing.T) {
	c := New(Config{Template: T3, MaxRate: 1000, MinHostgroup: 1, MaxHostgroup: 4})
	c.Admit("x")
	wait := c.BackpressureICMP("x")
	if wait != 2*time.Second {
		t.Errorf("first backoff = %v, want 2s", wait)
	}
	allowed, _ := c.Admit("x")
	if allowed {
		t.Error("target under backoff should not be admitted")
	}
}

func TestControllerConvergeRedistributesQuota(t *testing.T) {
	c := New(Config{Template: T3, MaxRate: 100, MinHostgroup: 2, MaxHostgroup: 2})
	c.Admit("a")
	c.Admit("b")
	for i := 0; i < 10; i++ {
		c.RecordSend("a")
	}
	c.RecordSend("b")
	c.converge()
	if c.ActiveCount() != 2 {
		t.Fatalf("ActiveCount = %d, want 2", c.ActiveCount())
	}
}

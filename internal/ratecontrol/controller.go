package ratecontrol

import (
	"context"
	"sync"
	"time"
)

// Config configures a Controller from the CLI surface spec.md §6 names:
// --max-rate, --min-rate, --min-hostgroup, --max-hostgroup, --scan-delay,
// plus a timing Template selected by -T0..-T5.
type Config struct {
	Template     Template
	MaxRate      float64 // probes/sec ceiling across the whole hostgroup
	MinRate      float64 // floor a target's quota is never redistributed below
	MinHostgroup int
	MaxHostgroup int
	ScanDelay    time.Duration // inter-probe delay; overrides Template's if nonzero

	// WindowPeriod is how often Converge runs; defaults to 1s, matching the
	// "one hostgroup window" cadence the spec's rate-bound and convergence
	// testable properties are stated against.
	WindowPeriod time.Duration

	// AdmitTolerance lets actual_rate exceed target_rate by a small margin
	// before throttling, absorbing EWMA noise. 1.03 matches the spec's
	// observed-pps-≤-max_rate*1.03 bound.
	AdmitTolerance float64
}

func (c Config) normalized() Config {
	if c.WindowPeriod <= 0 {
		c.WindowPeriod = time.Second
	}
	if c.AdmitTolerance <= 0 {
		c.AdmitTolerance = 1.03
	}
	if c.MinHostgroup <= 0 {
		c.MinHostgroup = 16
	}
	if c.MaxHostgroup <= 0 {
		c.MaxHostgroup = 256
	}
	if c.MaxRate <= 0 {
		c.MaxRate = c.Template.DefaultMaxRate
	}
	return c
}

// Controller is the Rate Controller component (C): a two-tier convergence
// scheduler sitting between the Scan Pipeline's send loop and the Codec.
type Controller struct {
	cfg  Config
	hg   *hostgroup
	rtt  *RTTEstimator
	rttMu sync.Mutex

	ewmaAlpha float64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a Controller bound to cfg, applying defaults for anything the
// caller left zero.
func New(cfg Config) *Controller {
	cfg = cfg.normalized()
	return &Controller{
		cfg:       cfg,
		hg:        newHostgroup(cfg.MinHostgroup, cfg.MaxHostgroup),
		rtt:       NewRTTEstimator(),
		ewmaAlpha: 0.3,
	}
}

// Run starts the periodic convergence loop. It returns once ctx is
// cancelled; in-flight Admit/RecordSend calls are unaffected by shutdown,
// matching the spec's drain-then-exit cancellation contract.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.mu.Unlock()

	ticker := time.NewTicker(c.cfg.WindowPeriod)
	defer ticker.Stop()
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.converge()
		}
	}
}

// Stop cancels the convergence loop and waits for it to exit.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Admit registers key (a target's ConnectionKey.Key()/Target.Key()) into
// the hostgroup window if there is room, then reports whether a probe to it
// may be sent right now under Tier 2 admission control. The caller should
// retry later (not busy-loop) when it returns false for "window full".
func (c *Controller) Admit(key string) (allowed bool, windowFull bool) {
	perTargetRate := c.cfg.MaxRate / float64(c.hg.maxSize)
	if perTargetRate < c.cfg.MinRate {
		perTargetRate = c.cfg.MinRate
	}
	state, ok := c.hg.admit(key, perTargetRate)
	if !ok {
		return false, true
	}
	return state.admit(time.Now(), c.cfg.AdmitTolerance), false
}

// RecordSend marks one probe as sent against key for Tier 2 accounting.
func (c *Controller) RecordSend(key string) {
	if s := c.hg.lookup(key); s != nil {
		s.recordSend()
	}
}

// Retire marks key's PortSet exhausted, freeing its hostgroup slot.
func (c *Controller) Retire(key string) {
	c.hg.retire(key)
}

// RecordRTT feeds a measured round-trip time into the shared SRTT/RTTVAR
// estimator used to size the per-target timeout budget.
func (c *Controller) RecordRTT(rtt time.Duration) {
	c.rttMu.Lock()
	c.rtt.Update(rtt)
	c.rttMu.Unlock()
}

// Timeout returns the current RTO, combined with the timing template's
// bounds (spec.md §4.3's initial_timeout/max_timeout).
func (c *Controller) Timeout() time.Duration {
	c.rttMu.Lock()
	rto := c.rtt.Timeout()
	c.rttMu.Unlock()
	if rto < c.cfg.Template.InitialTimeout {
		return c.cfg.Template.InitialTimeout
	}
	if rto > c.cfg.Template.MaxTimeout {
		return c.cfg.Template.MaxTimeout
	}
	return rto
}

// InterProbeDelay returns --scan-delay if set, else the template's default.
func (c *Controller) InterProbeDelay() time.Duration {
	if c.cfg.ScanDelay > 0 {
		return c.cfg.ScanDelay
	}
	return c.cfg.Template.InterProbeDelay
}

// Retries returns the timing template's retry budget.
func (c *Controller) Retries() int { return c.cfg.Template.Retries }

// BackpressureICMP suspends key under exponential backoff on receipt of an
// ICMP administratively-prohibited or host/net-prohibited reply.
func (c *Controller) BackpressureICMP(key string) time.Duration {
	if s := c.hg.lookup(key); s != nil {
		return s.icmpBackoff(time.Now())
	}
	return 0
}

// converge runs once per WindowPeriod: roll every active target's window
// into its EWMA measured rate, then redistribute quotas proportionally to
// --max-rate (spec.md §4.3 Convergence). Stale atomic reads from targets
// mid-send are tolerated; the next window corrects them.
func (c *Controller) converge() {
	now := time.Now()
	snap := c.hg.snapshot()
	if len(snap) == 0 {
		return
	}
	var totalMeasured float64
	for _, s := range snap {
		s.rollWindow(now, c.ewmaAlpha)
		totalMeasured += s.measured()
	}
	if totalMeasured <= 0 {
		return
	}
	for _, s := range snap {
		share := s.measured() / totalMeasured
		quota := share * c.cfg.MaxRate
		if quota < c.cfg.MinRate {
			quota = c.cfg.MinRate
		}
		s.setRate(quota)
		if now.UnixNano() > s.backoffUntil.Load() {
			s.clearBackoff()
		}
	}
}

// ActiveCount reports the current hostgroup window occupancy.
func (c *Controller) ActiveCount() int { return c.hg.size() }

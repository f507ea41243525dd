// Package pipeline is the Scan Pipeline component (D): it turns an
// expanded target/port list into wire probes, drives them through the
// rate controller and raw transmitter, and folds replies coming back
// through the receiver and probe correlator into per-target accounting,
// publishing every externally visible event on the shared bus.
package pipeline

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"scancore/internal/codec"
	"scancore/internal/correlator"
	"scancore/internal/eventbus"
	"scancore/internal/model"
	"scancore/internal/pkg/resource"
	"scancore/internal/ratecontrol"
)

// Options configures one scan run end to end; the CLI layer builds this
// from flags and Expand's output.
type Options struct {
	Targets    []*model.Target
	ScanType   model.ScanType
	Family     codec.Family
	SourceIP   net.IP
	SourcePort uint16
	Rate       ratecontrol.Config
	Permute    bool
	Decoys     *codec.DecoySet
	Fragment   bool
	MTU        int
	TTL        uint8
	BadSum     bool
}

// Run is one scan invocation: a stable identifier, the options it was
// built from, and the live accounting/bus a caller observes it through.
type Run struct {
	ID        string
	Started   time.Time
	opt       Options
	bus       *eventbus.Bus
	rate      *ratecontrol.Controller
	tx        *Transmitter
	rx        *Receiver
	corr      correlator.Correlator
	statefulCorr *correlator.Stateful // non-nil iff corr is backed by a connection table
	cookies   *correlator.CookieGen

	mu         sync.Mutex
	accounting map[string]*model.Accounting // per target Key()
}

// NewRun wires every component up (transmitter, receiver, rate controller,
// correlator) for opt and assigns a fresh scan-run identifier, detecting
// host capabilities (batch I/O, fd headroom) fresh for this run. The
// caller must call Start to begin probing and Close to release sockets.
func NewRun(opt Options, bus *eventbus.Bus) (*Run, error) {
	return NewRunWithCapabilities(opt, bus, resource.Detect())
}

// NewRunWithCapabilities is NewRun with a caller-supplied Capabilities
// snapshot, letting the CLI probe the host once and reuse it across
// multiple runs instead of re-detecting per scan.
func NewRunWithCapabilities(opt Options, bus *eventbus.Bus, caps resource.Capabilities) (*Run, error) {
	tx, err := NewTransmitter(caps)
	if err != nil {
		return nil, fmt.Errorf("transmitter: %w", err)
	}
	rx, err := NewReceiver(opt.Family)
	if err != nil {
		tx.Close()
		return nil, fmt.Errorf("receiver: %w", err)
	}

	cookies, err := correlator.NewCookieGen()
	if err != nil {
		tx.Close()
		rx.Close()
		return nil, err
	}

	rate := ratecontrol.New(opt.Rate)

	var corr correlator.Correlator
	var statefulCorr *correlator.Stateful
	switch opt.ScanType {
	case model.ScanSyn, model.ScanAck, model.ScanWindow, model.ScanFin, model.ScanNull, model.ScanXmas:
		corr = correlator.NewStateless(cookies, opt.ScanType, opt.SourcePort)
	default:
		statefulCorr = correlator.NewStateful(rate.Retries(), rate.Timeout, rate.RecordRTT)
		corr = statefulCorr
	}

	return &Run{
		ID:           uuid.NewString(),
		Started:      time.Now(),
		opt:          opt,
		bus:          bus,
		rate:         rate,
		tx:           tx,
		rx:           rx,
		corr:         corr,
		statefulCorr: statefulCorr,
		cookies:      cookies,
		accounting:   make(map[string]*model.Accounting),
	}, nil
}

// Start launches the send loop and the receive loop, both bound to ctx,
// and returns once every target's port set has been exhausted or ctx is
// cancelled. Results stream out as eventbus.PortFound/ProgressUpdate
// events; Accounting is available via Snapshot at any time, including
// mid-run.
func (r *Run) Start(ctx context.Context) error {
	r.bus.Publish(eventbus.Event{Kind: eventbus.ScanStarted, Payload: r.ID})
	r.rate.Run(ctx)
	defer r.rate.Stop()

	recvCtx, cancelRecv := context.WithCancel(ctx)
	defer cancelRecv()
	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		r.recvLoop(recvCtx)
	}()

	err := r.sendLoop(ctx)

	// Let in-flight replies land before tearing the receiver down.
	drain, cancel := context.WithTimeout(context.Background(), r.rate.Timeout()+time.Second)
	defer cancel()
	<-drain.Done()
	cancelRecv()
	<-recvDone

	r.bus.Publish(eventbus.Event{Kind: eventbus.ScanCompleted, Payload: r.ID})
	return err
}

// sendLoop walks every (target, port) pair in permuted order, admitting
// each through the rate controller before a probe is built and sent.
func (r *Run) sendLoop(ctx context.Context) error {
	type unit struct {
		target *model.Target
		port   uint16
	}
	var units []unit
	for _, t := range r.opt.Targets {
		for _, p := range t.Ports.Ports() {
			units = append(units, unit{t, p})
		}
	}
	if len(units) == 0 {
		return nil
	}

	order := func(i int64) int64 { return i }
	if r.opt.Permute {
		perm := NewPermuter(int64(len(units)), time.Now().UnixNano())
		order = perm.At
	}

	for i := int64(0); i < int64(len(units)); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		u := units[order(i)]
		key := u.target.Key()

		for {
			allowed, full := r.rate.Admit(key)
			if allowed {
				break
			}
			if full {
				time.Sleep(r.rate.InterProbeDelay())
				continue
			}
			time.Sleep(r.rate.InterProbeDelay())
		}

		probe := model.Probe{
			Target:   u.target,
			Port:     u.port,
			Protocol: model.ProtoTCP,
			ScanType: r.opt.ScanType,
			SrcPort:  r.opt.SourcePort,
			TimeSent: time.Now(),
			TTLUsed:  r.opt.TTL,
		}
		pkt, err := r.buildProbe(probe)
		if err != nil {
			r.bus.Publish(eventbus.Event{Kind: eventbus.Warning, Payload: err.Error()})
			continue
		}
		if r.statefulCorr != nil {
			connKey := model.NewConnectionKey(r.opt.SourceIP, u.target.Addr, r.opt.SourcePort, u.port)
			r.statefulCorr.Track(connKey, probe)
		}
		r.sendWithDecoys(u.target.Addr, pkt, probe)
		r.rate.RecordSend(key)
		r.incInFlight(key)
		time.Sleep(r.rate.InterProbeDelay())
	}
	return nil
}

// buildProbe frames one TCP control-bit probe via internal/codec,
// choosing the flag combination the scan type names (spec.md §4.1's
// SYN/FIN/NULL/Xmas/ACK/Window techniques share one code path, differing
// only in the flags byte and how the correlator reads the reply back).
func (r *Run) buildProbe(p model.Probe) ([]byte, error) {
	return r.buildProbeFrom(p, r.opt.SourceIP)
}

// buildProbeFrom is buildProbe with an explicit source address, letting
// sendWithDecoys re-frame the same probe under each decoy identity
// (spec.md's -D evasion: a decoy train shares everything but the source
// address a target sees it arrive from).
// buildProbeFrom frames an IPv4 TCP probe. IPv6 control-bit scans reuse
// the same correlator and rate-control machinery but need ipv6.BuildIPv6
// framing instead; that path is not wired into this send loop yet.
func (r *Run) buildProbeFrom(p model.Probe, src net.IP) ([]byte, error) {
	flags := scanTypeFlags(p.ScanType)
	salt := p.SrcPort
	seq := r.cookies.Cookie(p.Target.Addr, p.Port, salt)

	tcp := codec.TCPHeader{
		SrcPort: p.SrcPort,
		DstPort: p.Port,
		Seq:     seq,
		Flags:   flags,
		Window:  1024,
		Options: []codec.TCPOption{{Kind: codec.OptMSS, Data: []byte{0x05, 0xB4}}},
		BadSum:  r.opt.BadSum,
	}
	seg, err := codec.BuildTCP(r.opt.Family, src, p.Target.Addr, tcp)
	if err != nil {
		return nil, err
	}
	ip := codec.IPv4Header{
		TTL: p.TTLUsed,
		Src: src,
		Dst: p.Target.Addr,
	}
	return codec.BuildIPv4(ip, 6 /* TCP */, seg)
}

// sendWithDecoys transmits the real probe (pkt, already framed from
// r.opt.SourceIP) plus one recompiled copy per configured decoy address,
// in the DecoySet's address order with the real probe at slot MeAt, so a
// capture sees the genuine scanner among the decoys. Decoy transmission failures are
// not accounted against the target — only the real probe's outcome is.
func (r *Run) sendWithDecoys(dst net.IP, pkt []byte, probe model.Probe) {
	if r.opt.Decoys == nil || len(r.opt.Decoys.Addrs) == 0 {
		if err := r.tx.Send(dst, pkt); err != nil {
			r.recordError(probe.Target.Key())
		}
		return
	}
	for i, addr := range r.opt.Decoys.Addrs {
		if i == r.opt.Decoys.MeAt {
			if err := r.tx.Send(dst, pkt); err != nil {
				r.recordError(probe.Target.Key())
			}
			continue
		}
		decoyPkt, err := r.buildProbeFrom(probe, addr)
		if err != nil {
			continue
		}
		_ = r.tx.Send(dst, decoyPkt)
	}
}

func scanTypeFlags(st model.ScanType) uint16 {
	switch st {
	case model.ScanSyn:
		return codec.FlagSYN
	case model.ScanAck:
		return codec.FlagACK
	case model.ScanFin:
		return codec.FlagFIN
	case model.ScanXmas:
		return codec.FlagFIN | codec.FlagPSH | codec.FlagURG
	case model.ScanNull:
		return 0
	default:
		return codec.FlagSYN
	}
}

// recvLoop reads replies until ctx is cancelled, handing each to the
// correlator and folding terminal verdicts into accounting + the bus.
func (r *Run) recvLoop(ctx context.Context) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		reply, err := r.rx.Next(buf)
		if err != nil {
			continue
		}
		cr, ok := toCorrelatorReply(reply)
		if !ok {
			continue
		}
		result, ok := r.corr.AcceptReply(cr)
		if !ok {
			continue
		}
		r.recordResult(result)
	}
}

func toCorrelatorReply(reply *Reply) (correlator.Reply, bool) {
	p := reply.Packet
	var out correlator.Reply
	out.Received = time.Now()
	switch p.Kind {
	case codec.L4TCP:
		if p.IPv4 == nil {
			return out, false
		}
		out.SrcIP = p.IPv4.Src
		out.DstIP = p.IPv4.Dst
		out.ReplyTTL = p.IPv4.TTL
		out.SrcPort = p.TCP.SrcPort
		out.DstPort = p.TCP.DstPort
		out.Seq = p.TCP.Seq
		out.Ack = p.TCP.Ack
		out.Flags = p.TCP.Flags
		return out, true
	case codec.L4ICMP:
		if p.IPv4 == nil {
			return out, false
		}
		out.SrcIP = p.IPv4.Src
		out.DstIP = p.IPv4.Dst
		out.ReplyTTL = p.IPv4.TTL
		out.IsICMP = true
		out.ICMPType = p.ICMP.Type
		out.ICMPCode = p.ICMP.Code
		return out, true
	default:
		return out, false
	}
}

func (r *Run) incInFlight(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.acctFor(key)
	a.Sent++
	a.InFlight++
}

func (r *Run) recordError(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.acctFor(key)
	a.Sent++
	a.Errored++
}

func (r *Run) recordResult(result model.ScanResult) {
	r.mu.Lock()
	key := ""
	if result.Target != nil {
		key = result.Target.Key()
	}
	a := r.acctFor(key)
	if a.InFlight > 0 {
		a.InFlight--
	}
	a.Record(result.State)
	r.mu.Unlock()

	r.bus.Publish(eventbus.Event{Kind: eventbus.PortFound, Payload: result})
	r.bus.Publish(eventbus.Event{Kind: eventbus.ProgressUpdate, Payload: r.Snapshot()})
}

func (r *Run) acctFor(key string) *model.Accounting {
	a, ok := r.accounting[key]
	if !ok {
		a = &model.Accounting{}
		r.accounting[key] = a
	}
	return a
}

// Snapshot returns a copy of the aggregate accounting across every target,
// safe to call concurrently with an in-progress scan.
func (r *Run) Snapshot() model.Accounting {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total model.Accounting
	for _, a := range r.accounting {
		total.Sent += a.Sent
		total.Open += a.Open
		total.Closed += a.Closed
		total.Filtered += a.Filtered
		total.OpenFiltered += a.OpenFiltered
		total.ClosedFiltered += a.ClosedFiltered
		total.Unfiltered += a.Unfiltered
		total.Errored += a.Errored
		total.InFlight += a.InFlight
	}
	return total
}

// Close releases the transmitter and receiver sockets. Safe to call once
// Start has returned.
func (r *Run) Close() error {
	err := r.tx.Close()
	if e := r.rx.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

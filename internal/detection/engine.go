package detection

import (
	"context"
	"net"
	"strconv"
	"time"

	"scancore/internal/eventbus"
	"scancore/internal/model"
)

// Config tunes the detection worker pool: how many -sV follow-ups run
// concurrently (subject to AdaptiveLimiter's AIMD adjustment) and how deep
// the service-probe ladder goes. OSDetection is carried in the config but
// Engine does not read it: Engine never runs the OS-fingerprint sequencer
// (RunOSFingerprint).
type Config struct {
	WorkerPoolSize   int
	InitialRate      int
	VersionIntensity int // 0-9, gates which ProbeDef.Rarity values are tried
	OSDetection      bool
	ProbeTimeout     time.Duration
}

// Engine runs follow-up detection work against ports the Scan Pipeline
// already found open, admitting concurrent work through an AdaptiveLimiter
// and publishing ServiceDetected events on bus as each completes.
type Engine struct {
	cfg     Config
	probes  []*ProbeDef
	limiter *AdaptiveLimiter
	bus     *eventbus.Bus
}

// NewEngine builds an Engine from an already-parsed probe database (see
// ParseProbeDB) and cfg.
func NewEngine(cfg Config, probes []*ProbeDef, bus *eventbus.Bus) *Engine {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	initial := cfg.InitialRate
	if initial < 1 {
		initial = 8
	}
	max := cfg.WorkerPoolSize
	if max < initial {
		max = initial * 4
	}
	return &Engine{
		cfg:     cfg,
		probes:  probes,
		limiter: NewAdaptiveLimiter(initial, max),
		bus:     bus,
	}
}

// Submit runs detection for one open-port result in its own goroutine,
// gated by the AdaptiveLimiter, and publishes the outcome on the bus. It
// returns at once: admission and detection both happen in that goroutine,
// and Submit gives the caller no completion signal.
func (e *Engine) Submit(ctx context.Context, result model.ScanResult) {
	go func() {
		if err := e.limiter.Acquire(ctx); err != nil {
			return
		}
		defer e.limiter.Release()

		info, err := e.detect(ctx, result)
		if err != nil {
			e.limiter.OnFailure()
			e.bus.Publish(eventbus.Event{Kind: eventbus.Warning, Payload: err.Error()})
			return
		}
		e.limiter.OnSuccess()
		if info != nil {
			result.Service = info
			e.bus.Publish(eventbus.Event{Kind: eventbus.ServiceDetected, Payload: result})
		}
	}()
}

// detect dispatches to the SNMP fast path for udp/161, to TLS inspection
// for the well-known HTTPS/submission ports, and otherwise walks the
// service-probe ladder up to cfg.VersionIntensity. When nothing in the
// database matches it returns no ServiceInfo; there is no separate banner
// read.
func (e *Engine) detect(ctx context.Context, result model.ScanResult) (*model.ServiceInfo, error) {
	addr := result.Target.Addr.String()

	if result.Protocol == model.ProtoUDP && result.Port == 161 {
		return ProbeSNMP(addr, e.cfg.ProbeTimeout)
	}

	if isLikelyTLSPort(result.Port) {
		if tlsInfo, err := InspectTLS(result.Target.Addr, result.Port, e.cfg.ProbeTimeout); err == nil {
			info := &model.ServiceInfo{Name: "ssl/tls", Confidence: 1.0, OSHint: tlsInfo.Subject()}
			return info, nil
		}
	}

	return e.probeServiceLadder(ctx, result)
}

func isLikelyTLSPort(port uint16) bool {
	switch port {
	case 443, 465, 636, 989, 990, 992, 993, 994, 995, 8443:
		return true
	default:
		return false
	}
}

// probeServiceLadder tries each candidate probe in database order (an
// nmap-formatted feed lists NULL first; probes are not re-sorted by
// rarity), skipping any whose rarity exceeds VersionIntensity, and dialing
// the port fresh for every attempt since a
// closed connection can't be reused across differently-shaped probes.
func (e *Engine) probeServiceLadder(ctx context.Context, result model.ScanResult) (*model.ServiceInfo, error) {
	addr := net.JoinHostPort(result.Target.Addr.String(), strconv.Itoa(int(result.Port)))

	for _, p := range e.probes {
		if p.Rarity > e.cfg.VersionIntensity && p.Rarity != 0 {
			continue
		}
		if !portApplies(p, result.Port) {
			continue
		}
		resp, err := sendAndRead(ctx, addr, p.Payload, e.cfg.ProbeTimeout)
		if err != nil {
			continue
		}
		if info, ok := MatchResponse(e.probes, resp); ok {
			return info, nil
		}
	}
	return nil, nil
}

func portApplies(p *ProbeDef, port uint16) bool {
	if len(p.Ports) == 0 {
		return p.Name == "NULL"
	}
	for _, pp := range p.Ports {
		if uint16(pp) == port {
			return true
		}
	}
	return false
}

func sendAndRead(ctx context.Context, addr string, payload []byte, timeout time.Duration) ([]byte, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if len(payload) > 0 {
		conn.SetWriteDeadline(time.Now().Add(timeout))
		if _, err := conn.Write(payload); err != nil {
			return nil, err
		}
	}
	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		return nil, err
	}
	return buf[:n], nil
}

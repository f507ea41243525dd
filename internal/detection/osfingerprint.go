package detection

import (
	"context"
	"math"
	"net"
	"time"

	"scancore/internal/codec"
	"scancore/internal/model"
	"scancore/internal/pipeline"
)

// Signature is one externally-supplied OS signature entry scored against a
// collected model.OsFingerprint. The signature database's own on-disk
// format is out of scope (spec.md Non-goals); this package only consumes
// already-parsed entries, mirroring how servicedb.go treats service
// probes.
type Signature struct {
	Name    string
	CPE     []string
	SeqTI   string
	WinSize uint16
}

// sequencerProbe is one of the sixteen probes the OS test sends: six SEQ
// probes against the open port, T2-T7 against open/closed ports, IE
// (ICMP echo pair), U1 (a closed-port UDP probe), and ECN (a SYN with
// CWR+ECE to the open port).
type sequencerProbe struct {
	name string
	kind string // "seq", "t2".."t7", "ie", "u1", "ecn"
}

var probeMatrix = []sequencerProbe{
	{"SEQ1", "seq"}, {"SEQ2", "seq"}, {"SEQ3", "seq"},
	{"SEQ4", "seq"}, {"SEQ5", "seq"}, {"SEQ6", "seq"},
	{"T2", "t2"}, {"T3", "t3"}, {"T4", "t4"}, {"T5", "t5"},
	{"T6", "t6"}, {"T7", "t7"},
	{"IE1", "ie"}, {"IE2", "ie"},
	{"U1", "u1"},
	{"ECN", "ecn"},
}

// RunOSFingerprint sends the sixteen-probe matrix against target (openPort
// must be open, closedPort closed/filtered per the caller's earlier scan
// result) and collects the observed SEQ/window/ICMP features. It does not
// score against any signature database itself — see ScoreSignature.
func RunOSFingerprint(ctx context.Context, tx *pipeline.Transmitter, rx *pipeline.Receiver, srcIP net.IP, target *model.Target, openPort, closedPort uint16) (*model.OsFingerprint, error) {
	fp := &model.OsFingerprint{Target: target}

	var isns []uint32
	var ipids []uint16
	for i, probe := range probeMatrix {
		pkt, err := buildSequencerProbe(probe, srcIP, target.Addr, openPort, closedPort, uint16(i))
		if err != nil {
			continue
		}
		sendTime := time.Now()
		if err := tx.Send(target.Addr, pkt); err != nil {
			continue
		}

		reply, ok := waitForReply(ctx, rx, 2*time.Second)
		if !ok {
			continue
		}
		feature := extractFeature(probe, reply, sendTime)
		fp.Features = append(fp.Features, feature)

		if probe.kind == "seq" {
			if reply.Packet.Kind == codec.L4TCP && reply.Packet.TCP != nil {
				isns = append(isns, reply.Packet.TCP.Seq)
			}
			if reply.Packet.IPv4 != nil {
				ipids = append(ipids, reply.Packet.IPv4.ID)
			}
			fp.Options = append(fp.Options, optionProfile(reply))
		}
	}

	fp.Seq = computeSeqStats(isns, ipids)
	return fp, nil
}

func buildSequencerProbe(p sequencerProbe, src, dst net.IP, openPort, closedPort, salt uint16) ([]byte, error) {
	switch p.kind {
	case "seq":
		return buildTCPVariant(src, dst, openPort, codec.FlagSYN, 1+salt)
	case "t2":
		return buildTCPVariant(src, dst, openPort, 0, 2+salt) // NULL to open port
	case "t3":
		return buildTCPVariant(src, dst, openPort, codec.FlagSYN|codec.FlagFIN|codec.FlagURG|codec.FlagPSH, 3+salt)
	case "t4":
		return buildTCPVariant(src, dst, openPort, codec.FlagACK, 4+salt)
	case "t5":
		return buildTCPVariant(src, dst, closedPort, codec.FlagSYN, 5+salt)
	case "t6":
		return buildTCPVariant(src, dst, closedPort, codec.FlagACK, 6+salt)
	case "t7":
		return buildTCPVariant(src, dst, closedPort, codec.FlagFIN|codec.FlagPSH|codec.FlagURG, 7+salt)
	case "ie":
		payload := make([]byte, 120)
		icmp := codec.BuildICMPEcho(true, 0xabcd, salt, payload)
		return codec.BuildIPv4(codec.IPv4Header{TTL: 64, Src: src, Dst: dst}, 1 /* ICMP */, icmp)
	case "u1":
		udp, err := codec.BuildUDP(codec.V4, src, dst, 0xf1a5+salt, closedPort, []byte("scancore-os-probe"))
		if err != nil {
			return nil, err
		}
		return codec.BuildIPv4(codec.IPv4Header{TTL: 64, Src: src, Dst: dst}, 17 /* UDP */, udp)
	case "ecn":
		return buildTCPVariant(src, dst, openPort, codec.FlagSYN|codec.FlagCWR|codec.FlagECE, 8+salt)
	default:
		return nil, &codec.ParseError{Op: "probe", Msg: "unknown sequencer probe kind"}
	}
}

func buildTCPVariant(src, dst net.IP, port uint16, flags uint16, seq uint16) ([]byte, error) {
	tcp := codec.TCPHeader{
		SrcPort: 0xC1A0 + seq,
		DstPort: port,
		Seq:     uint32(seq) << 16,
		Flags:   flags,
		Window:  uint16(0xFA<<8) | 0xFF,
		Options: []codec.TCPOption{
			{Kind: codec.OptMSS, Data: []byte{0x05, 0xB4}},
			{Kind: codec.OptWScale, Data: []byte{0x0A}},
			{Kind: codec.OptNOP},
			{Kind: codec.OptNOP},
			{Kind: codec.OptTimestamp, Data: make([]byte, 8)},
			{Kind: codec.OptSACKPerm},
		},
	}
	seg, err := codec.BuildTCP(codec.V4, src, dst, tcp)
	if err != nil {
		return nil, err
	}
	return codec.BuildIPv4(codec.IPv4Header{TTL: 64, ID: seq, Src: src, Dst: dst}, 6, seg)
}

func waitForReply(ctx context.Context, rx *pipeline.Receiver, timeout time.Duration) (*pipeline.Reply, bool) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 65536)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, false
		default:
		}
		reply, err := rx.Next(buf)
		if err == nil {
			return reply, true
		}
	}
	return nil, false
}

func extractFeature(p sequencerProbe, reply *pipeline.Reply, sendTime time.Time) model.ProbeResponseFeature {
	fields := map[string]string{}
	if reply.Packet.IPv4 != nil {
		fields["TTL"] = fmtUint(uint64(reply.Packet.IPv4.TTL))
		if reply.Packet.IPv4.DontFrag {
			fields["DF"] = "Y"
		} else {
			fields["DF"] = "N"
		}
	}
	if reply.Packet.Kind == codec.L4TCP && reply.Packet.TCP != nil {
		fields["W"] = fmtUint(uint64(reply.Packet.TCP.Window))
		fields["F"] = fmtUint(uint64(reply.Packet.TCP.Flags))
	}
	return model.ProbeResponseFeature{Name: p.name, Fields: fields}
}

func optionProfile(reply *pipeline.Reply) model.TCPOptionProfile {
	var profile model.TCPOptionProfile
	if reply.Packet.TCP == nil {
		return profile
	}
	for _, o := range reply.Packet.TCP.Options {
		switch o.Kind {
		case codec.OptMSS:
			profile.Ordering = append(profile.Ordering, "MSS")
		case codec.OptWScale:
			profile.Ordering = append(profile.Ordering, "WSCALE")
		case codec.OptNOP:
			profile.Ordering = append(profile.Ordering, "NOP")
		case codec.OptTimestamp:
			profile.Ordering = append(profile.Ordering, "TIMESTAMP")
		case codec.OptSACKPerm:
			profile.Ordering = append(profile.Ordering, "SACK_PERM")
		}
	}
	profile.Window = reply.Packet.TCP.Window
	return profile
}

// computeSeqStats derives the ISN/IPID classification nmap's SEQ test
// family reports, from raw samples gathered across the six SEQ probes.
func computeSeqStats(isns []uint32, ipids []uint16) model.SeqStats {
	var stats model.SeqStats
	if len(isns) < 2 {
		return stats
	}
	var deltas []float64
	for i := 1; i < len(isns); i++ {
		deltas = append(deltas, float64(isns[i]-isns[i-1]))
	}
	stats.ISR = mean(deltas)
	stats.SP = stddev(deltas, stats.ISR)
	stats.GCD = gcdAll(isns)
	stats.TI = classifyIPIDSequence(ipids)
	return stats
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func gcdAll(vals []uint32) uint32 {
	if len(vals) < 2 {
		return 0
	}
	g := vals[1] - vals[0]
	for i := 2; i < len(vals); i++ {
		g = gcd(g, vals[i]-vals[i-1])
	}
	return g
}

func gcd(a, b uint32) uint32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func classifyIPIDSequence(ipids []uint16) string {
	if len(ipids) < 2 {
		return "?"
	}
	increasing := true
	zero := true
	for i, v := range ipids {
		if v != 0 {
			zero = false
		}
		if i > 0 && v <= ipids[i-1] {
			increasing = false
		}
	}
	switch {
	case zero:
		return "Z"
	case increasing:
		return "I"
	default:
		return "RD"
	}
}

func fmtUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits[i:])
}

// ScoreSignature computes a percentage match between fp and sig across the
// handful of SEQ/window fields this package collects, matching nmap's
// per-test-field percentage scoring convention (a full port of its ~70
// fields is out of scope; TI and window size are the two highest-weight,
// highest-stability fields in practice).
func ScoreSignature(fp *model.OsFingerprint, sig Signature) model.OsCandidate {
	score := 0.0
	total := 0.0

	total += 50
	if fp.Seq.TI != "" && fp.Seq.TI == sig.SeqTI {
		score += 50
	}

	total += 50
	if len(fp.Options) > 0 && fp.Options[0].Window == sig.WinSize {
		score += 50
	}

	accuracy := 0.0
	if total > 0 {
		accuracy = (score / total) * 100
	}
	return model.OsCandidate{Name: sig.Name, CPE: sig.CPE, Accuracy: accuracy}
}

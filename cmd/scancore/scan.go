package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scancore/internal/codec"
	"scancore/internal/detection"
	"scancore/internal/eventbus"
	"scancore/internal/model"
	"scancore/internal/pipeline"
	"scancore/internal/pkg/logger"
	"scancore/internal/pkg/resource"
	"scancore/internal/ratecontrol"
)

var scanFlags struct {
	ports        string
	excludePorts string
	scanType     string
	targetFile   string
	excludeFile  string
	ipv6         bool
	template     int
	maxRate      float64
	minRate      float64
	minHostgroup int
	maxHostgroup int
	scanDelayMS  int
	admitTol     float64
	fragment     bool
	mtu          int
	ttl          int
	badsum       bool
	decoys       []string
	decoyMe      int
	sourceIP     string
	sourcePort   int
	serviceDetect bool
	versionIntensity int
	osDetect     bool
	aggressive   bool
	skipCDN      bool
	cdnFilter    bool
	cdnRanges    []string
	batchSize    int
	permute      bool
	resolver     string
	serviceDBFile string
}

var scanCmd = &cobra.Command{
	Use:   "scan [flags] target [target...]",
	Short: "Run a scan against one or more targets",
	Long: `scan expands the given targets (IP, CIDR, "a.b.c.d-e" range, or
hostname), sweeps the requested port set with the chosen probe technique,
and — when -sV is set — follows up every open port with service detection.
-O only sets the detection engine's OS-detection option; this command sends
no OS-fingerprint probes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVarP(&scanFlags.ports, "ports", "p", "1-1000", "port specification, e.g. 22,80,443,1000-2000")
	f.StringVar(&scanFlags.excludePorts, "exclude-ports", "", "ports to exclude from the sweep")
	f.StringVarP(&scanFlags.scanType, "scan-type", "s", "syn", "syn|connect|udp|fin|null|xmas|ack|window|idle")
	f.StringVarP(&scanFlags.targetFile, "iL", "", "", "read targets from file, one per line")
	f.StringVar(&scanFlags.excludeFile, "excludefile", "", "read excluded targets from file")
	f.BoolVarP(&scanFlags.ipv6, "ipv6", "6", false, "resolve hostnames to IPv6 addresses (probe framing is IPv4-only, so IPv6 targets are not probed)")
	f.IntVarP(&scanFlags.template, "timing", "T", 3, "timing template 0 (paranoid) - 5 (insane)")
	f.Float64Var(&scanFlags.maxRate, "max-rate", 0, "probes/sec ceiling across the hostgroup (0: template default)")
	f.Float64Var(&scanFlags.minRate, "min-rate", 0, "per-target floor a quota is never redistributed below")
	f.IntVar(&scanFlags.minHostgroup, "min-hostgroup", 0, "minimum concurrent target window size")
	f.IntVar(&scanFlags.maxHostgroup, "max-hostgroup", 0, "maximum concurrent target window size")
	f.IntVar(&scanFlags.scanDelayMS, "scan-delay", 0, "inter-probe delay in milliseconds (overrides the template's)")
	f.Float64Var(&scanFlags.admitTol, "admit-tolerance", 0, "allowed overshoot above max-rate before throttling")
	f.BoolVarP(&scanFlags.fragment, "fragment", "f", false, "fragment probes below the path MTU")
	f.IntVar(&scanFlags.mtu, "mtu", 0, "custom fragment MTU (multiple of 8)")
	f.IntVar(&scanFlags.ttl, "ttl", 64, "IP time-to-live for crafted probes")
	f.BoolVar(&scanFlags.badsum, "badsum", false, "send probes with a deliberately invalid checksum")
	f.StringSliceVarP(&scanFlags.decoys, "decoys", "D", nil, "decoy source addresses (RND:N or explicit list)")
	f.IntVar(&scanFlags.decoyMe, "decoy-me", -1, "position of the real source among the decoys (-1: random)")
	f.StringVar(&scanFlags.sourceIP, "source-ip", "", "source address for crafted probes (default: outbound-route address)")
	f.IntVarP(&scanFlags.sourcePort, "source-port", "g", 0, "source port for crafted probes (default: random ephemeral)")
	f.BoolVarP(&scanFlags.serviceDetect, "sV", "", false, "enable service/version detection on open ports")
	f.IntVar(&scanFlags.versionIntensity, "version-intensity", 7, "service-probe ladder depth, 0-9")
	f.BoolVarP(&scanFlags.osDetect, "O", "", false, "set the detection engine's OS-detection option (no OS-fingerprint probes are sent)")
	f.BoolVarP(&scanFlags.aggressive, "A", "", false, "enable -sV, -O, and --permute together")
	f.BoolVar(&scanFlags.skipCDN, "skip-cdn", false, "drop targets in known CDN ranges before probing")
	f.BoolVar(&scanFlags.cdnFilter, "cdn-filter", false, "restrict probing to known CDN ranges only")
	f.StringSliceVar(&scanFlags.cdnRanges, "cdn-range", nil, "extra CIDR ranges for --skip-cdn/--cdn-filter")
	f.IntVar(&scanFlags.batchSize, "batch-size", 1024, "requested raw-socket batch size, clamped to fd headroom and logged (probes are still sent one per call)")
	f.BoolVar(&scanFlags.permute, "permute", false, "randomize probe order (BlackRock keyed permutation)")
	f.StringVar(&scanFlags.resolver, "resolver", "", "DNS resolver IP for direct hostname lookups")
	f.StringVar(&scanFlags.serviceDBFile, "service-db", "", "nmap-service-probes-formatted service database")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFlags.aggressive {
		scanFlags.serviceDetect = true
		scanFlags.osDetect = true
		scanFlags.permute = true
	}

	scanType, err := parseScanType(scanFlags.scanType)
	if err != nil {
		return err
	}

	tcpPorts, err := model.ParsePortSpec(model.ProtoTCP, scanFlags.ports)
	if err != nil {
		return fmt.Errorf("parsing --ports: %w", err)
	}
	if scanFlags.excludePorts != "" {
		excl, err := model.ParsePortSpec(model.ProtoTCP, scanFlags.excludePorts)
		if err != nil {
			return fmt.Errorf("parsing --exclude-ports: %w", err)
		}
		tcpPorts.Exclude(excl.Ports()...)
	}

	targets, err := pipeline.Expand(pipeline.ExpandOptions{
		Specs:       args,
		TargetFile:  scanFlags.targetFile,
		ExcludeFile: scanFlags.excludeFile,
		Ports:       tcpPorts,
		IPv6:        scanFlags.ipv6,
		Resolver:    scanFlags.resolver,
	})
	if err != nil {
		return fmt.Errorf("expanding targets: %w", err)
	}

	if scanFlags.skipCDN || scanFlags.cdnFilter {
		policy := pipeline.CDNPolicyDefault
		if scanFlags.cdnFilter {
			policy = pipeline.CDNPolicyWhitelist
		} else if len(scanFlags.cdnRanges) > 0 {
			policy = pipeline.CDNPolicyBlacklist
		}
		filter := pipeline.NewCDNFilter(policy, scanFlags.cdnRanges)
		targets = filter.Apply(targets)
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets to scan after expansion/filtering")
	}

	srcIP, err := resolveSourceIP(scanFlags.sourceIP, targets[0].Addr)
	if err != nil {
		return fmt.Errorf("resolving source address: %w", err)
	}
	srcPort := uint16(scanFlags.sourcePort)
	if srcPort == 0 {
		srcPort = randomEphemeralPort()
	}

	template := ratecontrol.TemplateByIndex(scanFlags.template)
	rateCfg := ratecontrol.Config{
		Template:     template,
		MaxRate:      scanFlags.maxRate,
		MinRate:      scanFlags.minRate,
		MinHostgroup: scanFlags.minHostgroup,
		MaxHostgroup: scanFlags.maxHostgroup,
		AdmitTolerance: scanFlags.admitTol,
	}
	if scanFlags.scanDelayMS > 0 {
		rateCfg.ScanDelay = time.Duration(scanFlags.scanDelayMS) * time.Millisecond
	}

	decoys, err := buildDecoySet(scanFlags.decoys, srcIP, scanFlags.decoyMe)
	if err != nil {
		return fmt.Errorf("building decoy set: %w", err)
	}

	caps := resource.Detect()
	clampedBatch := caps.ClampBatchSize(scanFlags.batchSize)
	if clampedBatch != scanFlags.batchSize {
		logger.LogSystemEvent("scan", "batch_size_clamped", "reduced to fit fd headroom", logger.InfoLevel,
			map[string]interface{}{"requested": scanFlags.batchSize, "clamped": clampedBatch})
	}
	if scanFlags.maxHostgroup > 0 {
		rateCfg.MaxHostgroup = caps.ClampHostgroup(scanFlags.maxHostgroup)
	}

	bus := eventbus.New()
	sub := bus.Subscribe(1024)
	defer sub.Close()
	go printEvents(sub)

	opt := pipeline.Options{
		Targets:    targets,
		ScanType:   scanType,
		Family:     codec.V4,
		SourceIP:   srcIP,
		SourcePort: srcPort,
		Rate:       rateCfg,
		Permute:    scanFlags.permute,
		Decoys:     decoys,
		Fragment:   scanFlags.fragment,
		MTU:        scanFlags.mtu,
		TTL:        uint8(scanFlags.ttl),
		BadSum:     scanFlags.badsum,
	}

	run, err := pipeline.NewRunWithCapabilities(opt, bus, caps)
	if err != nil {
		return fmt.Errorf("starting scan run: %w", err)
	}
	defer run.Close()

	var engine *detection.Engine
	if scanFlags.serviceDetect {
		engine = buildDetectionEngine(bus)
	}
	if engine != nil {
		detSub := bus.Subscribe(1024, eventbus.PortFound)
		defer detSub.Close()
		go forwardOpenPortsToDetection(detSub, engine)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.LogSystemEvent("scan", "interrupt", "shutting down, draining in-flight probes", logger.WarnLevel, nil)
		cancel()
	}()

	if err := run.Start(ctx); err != nil && err != context.Canceled {
		return err
	}

	acct := run.Snapshot()
	fmt.Printf("\nscan %s complete: sent=%d open=%d closed=%d filtered=%d errored=%d\n",
		run.ID, acct.Sent, acct.Open, acct.Closed, acct.Filtered, acct.Errored)
	return nil
}

func parseScanType(s string) (model.ScanType, error) {
	switch strings.ToLower(s) {
	case "syn", "s":
		return model.ScanSyn, nil
	case "connect", "t":
		return model.ScanConnect, nil
	case "udp", "u":
		return model.ScanUdp, nil
	case "fin", "f":
		return model.ScanFin, nil
	case "null", "n":
		return model.ScanNull, nil
	case "xmas", "x":
		return model.ScanXmas, nil
	case "ack", "a":
		return model.ScanAck, nil
	case "window", "w":
		return model.ScanWindow, nil
	case "idle", "i":
		return model.ScanIdleSpoofed, nil
	default:
		return 0, fmt.Errorf("unknown scan type %q", s)
	}
}

// resolveSourceIP picks the local address the kernel would route dst
// through, when the caller didn't pin one with --source-ip. Dialing UDP
// never sends a packet; it only asks the routing table which interface
// would carry traffic to dst.
func resolveSourceIP(explicit string, dst net.IP) (net.IP, error) {
	if explicit != "" {
		ip := net.ParseIP(explicit)
		if ip == nil {
			return nil, fmt.Errorf("invalid --source-ip %q", explicit)
		}
		return ip, nil
	}
	conn, err := net.Dial("udp", net.JoinHostPort(dst.String(), "80"))
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}

func randomEphemeralPort() uint16 {
	n, err := rand.Int(rand.Reader, big.NewInt(16383))
	if err != nil {
		return 51234
	}
	return uint16(n.Int64()) + 49152
}

func buildDecoySet(specs []string, real net.IP, meAt int) (*codec.DecoySet, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	if len(specs) == 1 && strings.HasPrefix(strings.ToUpper(specs[0]), "RND:") {
		n := 0
		fmt.Sscanf(strings.ToUpper(specs[0]), "RND:%d", &n)
		return codec.NewRandomDecoySet(real, n)
	}
	addrs := make([]net.IP, 0, len(specs))
	pos := meAt
	for _, s := range specs {
		if strings.EqualFold(s, "ME") {
			pos = len(addrs)
			continue
		}
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, fmt.Errorf("invalid decoy address %q", s)
		}
		addrs = append(addrs, ip)
	}
	if pos > len(addrs) {
		pos = len(addrs)
	}
	if pos < 0 {
		pos = len(addrs)
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(len(addrs)+1))); err == nil {
			pos = int(n.Int64())
		}
	}
	return codec.NewDecoySet(addrs, real, pos), nil
}

func buildDetectionEngine(bus *eventbus.Bus) *detection.Engine {
	var probes []*detection.ProbeDef
	if scanFlags.serviceDBFile != "" {
		if data, err := os.ReadFile(scanFlags.serviceDBFile); err == nil {
			if parsed, err := detection.ParseProbeDB(string(data)); err == nil {
				probes = parsed
			}
		}
	}
	return detection.NewEngine(detection.Config{
		WorkerPoolSize:   64,
		InitialRate:      8,
		VersionIntensity: scanFlags.versionIntensity,
		OSDetection:      scanFlags.osDetect,
	}, probes, bus)
}

func forwardOpenPortsToDetection(sub *eventbus.Subscription, engine *detection.Engine) {
	for ev := range sub.Events() {
		if ev.Kind != eventbus.PortFound {
			continue
		}
		result, ok := ev.Payload.(model.ScanResult)
		if !ok || result.State != model.StateOpen {
			continue
		}
		engine.Submit(context.Background(), result)
	}
}

func printEvents(sub *eventbus.Subscription) {
	for ev := range sub.Events() {
		switch ev.Kind {
		case eventbus.PortFound:
			if r, ok := ev.Payload.(model.ScanResult); ok && r.State == model.StateOpen {
				fmt.Printf("%-21s %5d/%-3s open\n", r.Target.String(), r.Port, r.Protocol)
			}
		case eventbus.ServiceDetected:
			if r, ok := ev.Payload.(model.ScanResult); ok && r.Service != nil {
				fmt.Printf("%-21s %5d/%-3s %s %s %s\n", r.Target.String(), r.Port, r.Protocol, r.Service.Name, r.Service.Product, r.Service.Version)
			}
		case eventbus.Warning:
			fmt.Fprintf(os.Stderr, "warning: %v\n", ev.Payload)
		}
	}
}

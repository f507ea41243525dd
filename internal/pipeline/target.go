package pipeline

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"scancore/internal/model"
)

// ExpandOptions controls target-expansion stage D1 (spec.md §5's "Target
// expansion" step). A single call to Expand is the sole entry point every
// CLI subcommand funnels through, so the CDN/exclude filter is applied
// exactly once regardless of which scan type invoked it.
type ExpandOptions struct {
	Specs        []string // CIDR/range/hostname/IP literals
	TargetFile   string   // -iL
	ExcludeSpecs []string
	ExcludeFile  string
	Ports        *model.PortSet
	IPv6         bool // resolve AAAA instead of A for hostnames
	Resolver     string
}

// Expand parses every target form spec.md §8 names, deduplicates by
// address, subtracts --exclude, and attaches the shared PortSet. CDN
// filtering (cdnfilter.go) runs afterward, against this stage's output —
// never against a subset of it — closing the historical two-entry-path bug
// spec.md §5 calls out.
func Expand(opt ExpandOptions) ([]*model.Target, error) {
	specs := append([]string{}, opt.Specs...)
	if opt.TargetFile != "" {
		lines, err := readLines(opt.TargetFile)
		if err != nil {
			return nil, fmt.Errorf("reading target file: %w", err)
		}
		specs = append(specs, lines...)
	}

	excludeSpecs := append([]string{}, opt.ExcludeSpecs...)
	if opt.ExcludeFile != "" {
		lines, err := readLines(opt.ExcludeFile)
		if err != nil {
			return nil, fmt.Errorf("reading exclude file: %w", err)
		}
		excludeSpecs = append(excludeSpecs, lines...)
	}

	excluded := map[string]bool{}
	for _, spec := range excludeSpecs {
		addrs, err := resolveSpec(spec, opt.IPv6, opt.Resolver)
		if err != nil {
			continue // an unresolvable exclusion entry excludes nothing, never errors the run
		}
		for _, a := range addrs {
			excluded[a.String()] = true
		}
	}

	seen := map[string]bool{}
	var out []*model.Target
	for _, spec := range specs {
		addrs, hostname, err := resolveSpecWithHostname(spec, opt.IPv6, opt.Resolver)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", spec, err)
		}
		for _, addr := range addrs {
			key := addr.String()
			if seen[key] || excluded[key] {
				continue
			}
			seen[key] = true
			family := model.FamilyV4
			if addr.To4() == nil {
				family = model.FamilyV6
			}
			out = append(out, &model.Target{
				Family:   family,
				Addr:     addr,
				Hostname: hostname,
				Ports:    opt.Ports,
			})
		}
	}
	return out, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func resolveSpec(spec string, ipv6 bool, resolver string) ([]net.IP, error) {
	addrs, _, err := resolveSpecWithHostname(spec, ipv6, resolver)
	return addrs, err
}

// resolveSpecWithHostname handles a single IP, CIDR block, "A-B" range, or
// hostname. A hostname returns a non-empty hostname string; everything else
// leaves it blank.
func resolveSpecWithHostname(spec string, ipv6 bool, resolver string) ([]net.IP, string, error) {
	spec = strings.TrimSpace(spec)

	if ip := net.ParseIP(spec); ip != nil {
		return []net.IP{ip}, "", nil
	}

	if strings.Contains(spec, "/") {
		ips, err := expandCIDR(spec)
		return ips, "", err
	}

	if lo, hi, ok := strings.Cut(spec, "-"); ok && net.ParseIP(lo) != nil {
		ips, err := expandRange(lo, hi)
		return ips, "", err
	}

	ips, err := lookupHostname(spec, ipv6, resolver)
	return ips, spec, err
}

func expandCIDR(cidr string) ([]net.IP, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for cur := ip.Mask(ipnet.Mask); ipnet.Contains(cur); incIP(cur) {
		out = append(out, append(net.IP{}, cur...))
	}
	// a /31 or /32 still yields at least the network address; larger
	// blocks drop network/broadcast the way a real sweep would skip them
	// only for IPv4 with more than two hosts.
	if len(out) > 2 && ip.To4() != nil {
		out = out[1 : len(out)-1]
	}
	return out, nil
}

func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			return
		}
	}
}

func expandRange(loStr, hiStr string) ([]net.IP, error) {
	lo := net.ParseIP(loStr)
	if lo == nil {
		return nil, fmt.Errorf("invalid range start %q", loStr)
	}
	// "A-B" shorthand shares A's first three octets with a bare last-octet
	// B, e.g. "192.168.1.1-254"; a full dotted B overrides entirely.
	var hi net.IP
	if n, err := strconv.Atoi(hiStr); err == nil && lo.To4() != nil {
		hi = append(net.IP{}, lo.To4()...)
		hi[3] = byte(n)
	} else {
		hi = net.ParseIP(hiStr)
		if hi == nil {
			return nil, fmt.Errorf("invalid range end %q", hiStr)
		}
	}

	var out []net.IP
	cur := append(net.IP{}, lo...)
	for {
		out = append(out, append(net.IP{}, cur...))
		if cur.Equal(hi) {
			break
		}
		incIP(cur)
		if len(out) > 1<<20 {
			return nil, fmt.Errorf("range too large")
		}
	}
	return out, nil
}

// lookupHostname resolves a hostname via the system resolver, or via a
// direct miekg/dns query against resolver when one is configured (useful
// when the ambient resolver lags authoritative AAAA records during an IPv6
// sweep, spec.md's seed scenario 3).
func lookupHostname(host string, ipv6 bool, resolver string) ([]net.IP, error) {
	if resolver == "" {
		ips, err := net.LookupIP(host)
		if err != nil {
			return nil, err
		}
		return filterFamily(ips, ipv6), nil
	}

	qtype := dns.TypeA
	if ipv6 {
		qtype = dns.TypeAAAA
	}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	client := new(dns.Client)
	client.Timeout = 5 * time.Second

	resp, _, err := client.Exchange(msg, net.JoinHostPort(resolver, "53"))
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for _, rr := range resp.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			out = append(out, rec.A)
		case *dns.AAAA:
			out = append(out, rec.AAAA)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no %s records for %s", dns.TypeToString[qtype], host)
	}
	return out, nil
}

func filterFamily(ips []net.IP, ipv6 bool) []net.IP {
	var out []net.IP
	for _, ip := range ips {
		isV4 := ip.To4() != nil
		if isV4 != ipv6 {
			out = append(out, ip)
		}
	}
	return out
}

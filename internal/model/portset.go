package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PortSet is an ordered, deduplicated sequence of 16-bit ports tagged with a
// protocol. It supports the inclusion/exclusion arithmetic the target
// expansion stage needs for `-p`/`--exclude-ports`.
type PortSet struct {
	Protocol Protocol
	ports    []uint16
}

// NewPortSet builds a PortSet from explicit port numbers, deduplicating and
// sorting them so iteration order is deterministic regardless of input order.
func NewPortSet(proto Protocol, ports ...uint16) *PortSet {
	ps := &PortSet{Protocol: proto}
	ps.Add(ports...)
	return ps
}

// Add inserts ports, preserving the sorted-unique invariant.
func (p *PortSet) Add(ports ...uint16) {
	seen := make(map[uint16]bool, len(p.ports))
	for _, v := range p.ports {
		seen[v] = true
	}
	for _, v := range ports {
		if !seen[v] {
			seen[v] = true
			p.ports = append(p.ports, v)
		}
	}
	sort.Slice(p.ports, func(i, j int) bool { return p.ports[i] < p.ports[j] })
}

// Exclude removes ports, used for `--exclude-ports`.
func (p *PortSet) Exclude(ports ...uint16) {
	if len(ports) == 0 {
		return
	}
	drop := make(map[uint16]bool, len(ports))
	for _, v := range ports {
		drop[v] = true
	}
	out := p.ports[:0:0]
	for _, v := range p.ports {
		if !drop[v] {
			out = append(out, v)
		}
	}
	p.ports = out
}

// Ports returns the sorted, deduplicated port list. Callers must not mutate
// the returned slice.
func (p *PortSet) Ports() []uint16 {
	return p.ports
}

// Len reports the number of distinct ports in the set.
func (p *PortSet) Len() int {
	return len(p.ports)
}

// Contains reports whether port is a member of the set.
func (p *PortSet) Contains(port uint16) bool {
	idx := sort.Search(len(p.ports), func(i int) bool { return p.ports[i] >= port })
	return idx < len(p.ports) && p.ports[idx] == port
}

// ParsePortSpec parses an nmap-style port specification such as
// "22,80,443,1000-2000" into a PortSet. It supports the `-p-` convention when
// the caller passes "1-65535" explicitly; the all-ports shorthand itself is a
// CLI-layer concern.
func ParsePortSpec(proto Protocol, spec string) (*PortSet, error) {
	ps := &PortSet{Protocol: proto}
	if strings.TrimSpace(spec) == "" {
		return ps, nil
	}
	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(field, "-"); ok {
			loN, err := strconv.ParseUint(strings.TrimSpace(lo), 10, 16)
			if err != nil {
				return nil, fmt.Errorf("invalid port range %q: %w", field, err)
			}
			hiN, err := strconv.ParseUint(strings.TrimSpace(hi), 10, 16)
			if err != nil {
				return nil, fmt.Errorf("invalid port range %q: %w", field, err)
			}
			if loN > hiN {
				return nil, fmt.Errorf("invalid port range %q: low > high", field)
			}
			for port := loN; port <= hiN; port++ {
				ps.Add(uint16(port))
			}
			continue
		}
		n, err := strconv.ParseUint(field, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", field, err)
		}
		ps.Add(uint16(n))
	}
	return ps, nil
}

// TopPorts is a small, well-known "-F" fast-scan default, standing in for the
// external top-1000 frequency table the CLI layer would normally load.
var TopPorts = []uint16{
	21, 22, 23, 25, 53, 80, 110, 111, 135, 139,
	143, 443, 445, 993, 995, 1723, 3306, 3389, 5900, 8080,
}

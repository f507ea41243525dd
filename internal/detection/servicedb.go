// Package detection is the Detection Core component (E): service-version
// identification, TLS certificate inspection, an SNMP fast path, and the
// OS-fingerprint 16-probe sequencer. Engine runs the first three as -sV
// follow-up work against ports the Scan Pipeline already found open;
// RunOSFingerprint is a separate entry point that Engine does not call.
package detection

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ProbeDef is one entry from a service-probe database: what to send, which
// ports it's worth trying against first, and the match rules that turn a
// response into a ServiceInfo. This is the in-memory shape spec.md §4.4
// names ({protocol,payload,ports,intensity_level,match_rules}); the
// on-disk format producing it is out of scope (spec.md Non-goals) and this
// package only consumes an already-parsed database such as the one
// ParseProbeDB below builds from an nmap-service-probes-formatted feed.
type ProbeDef struct {
	Name       string
	Protocol   string // "TCP" or "UDP"
	Payload    []byte
	Rarity     int // intensity_level: only tried when --version-intensity >= Rarity
	Ports      []int
	SSLPorts   []int
	Fallback   string
	Matches    []*MatchRule
	SoftMatch  []*MatchRule
}

// MatchRule is one match/softmatch line: a compiled pattern plus the
// version-info template nmap's p//v//i// tokens expand against capture
// groups.
type MatchRule struct {
	Soft        bool
	Service     string
	Pattern     *regexp.Regexp
	VersionInfo string
}

// ParseProbeDB parses an nmap-service-probes-formatted feed into a list of
// ProbeDefs. Probes accumulate Matches/SoftMatch lines until the next
// "Probe" directive; any other directive preceding the first Probe line is
// ignored, matching the reference format's own tolerance for stray content.
func ParseProbeDB(content string) ([]*ProbeDef, error) {
	content = strings.ReplaceAll(content, "${backquote}", "`")
	lines := strings.Split(content, "\n")

	var probes []*ProbeDef
	var cur *ProbeDef
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "Probe "):
			p, err := parseProbeLine(line)
			if err != nil {
				continue // a malformed entry doesn't invalidate the whole feed
			}
			cur = p
			probes = append(probes, p)

		case cur == nil:
			continue // match/ports/etc. must follow a Probe line

		case strings.HasPrefix(line, "match ") || strings.HasPrefix(line, "softmatch "):
			m, err := parseMatchLine(line)
			if err != nil {
				continue
			}
			if strings.HasPrefix(line, "softmatch ") {
				m.Soft = true
				cur.SoftMatch = append(cur.SoftMatch, m)
			} else {
				cur.Matches = append(cur.Matches, m)
			}

		case strings.HasPrefix(line, "ports "):
			cur.Ports = parsePortList(strings.TrimPrefix(line, "ports "))

		case strings.HasPrefix(line, "sslports "):
			cur.SSLPorts = parsePortList(strings.TrimPrefix(line, "sslports "))

		case strings.HasPrefix(line, "rarity "):
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "rarity"))); err == nil {
				cur.Rarity = n
			}

		case strings.HasPrefix(line, "fallback "):
			cur.Fallback = strings.TrimSpace(strings.TrimPrefix(line, "fallback"))
		}
	}
	return probes, nil
}

// parseProbeLine parses `Probe TCP NULL q||` — the quoted field uses a
// caller-chosen delimiter (the byte right after 'q'), closed by its last
// occurrence in the line.
func parseProbeLine(line string) (*ProbeDef, error) {
	qIdx := strings.Index(line, " q")
	if qIdx == -1 {
		return nil, fmt.Errorf("probe line missing q-delimited payload: %q", line)
	}
	prefix := strings.Fields(line[:qIdx])
	if len(prefix) != 3 {
		return nil, fmt.Errorf("malformed probe prefix: %q", line[:qIdx])
	}

	rest := line[qIdx+1:]
	if len(rest) < 3 {
		return nil, fmt.Errorf("truncated probe payload: %q", line)
	}
	delim := rest[1]
	end := strings.LastIndexByte(rest, delim)
	if end <= 1 {
		return nil, fmt.Errorf("unterminated probe payload: %q", line)
	}

	return &ProbeDef{
		Name:     prefix[2],
		Protocol: strings.ToUpper(prefix[1]),
		Payload:  unescapeProbeString(rest[2:end]),
	}, nil
}

// parseMatchLine parses `match ftp m/^220.*FTP/i p/vsftpd/`.
func parseMatchLine(line string) (*MatchRule, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("malformed match line: %q", line)
	}
	service, rest := parts[1], parts[2]
	if len(rest) < 3 || rest[0] != 'm' {
		return nil, fmt.Errorf("match line missing m/pattern/: %q", line)
	}
	delim := rest[1]

	end := -1
	for i := 2; i < len(rest); i++ {
		if rest[i] == delim && rest[i-1] != '\\' {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, fmt.Errorf("unterminated match pattern: %q", line)
	}
	pattern := rest[2:end]

	tail := rest[end+1:]
	flags, versionInfo := splitFlagsAndVersionInfo(tail)
	if strings.Contains(flags, "i") {
		pattern = "(?i)" + pattern
	}
	if strings.Contains(flags, "s") {
		pattern = "(?s)" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("unsupported match regex %q: %w", pattern, err)
	}
	return &MatchRule{Service: service, Pattern: re, VersionInfo: versionInfo}, nil
}

func splitFlagsAndVersionInfo(tail string) (flags, versionInfo string) {
	if tail == "" {
		return "", ""
	}
	sp := strings.IndexByte(tail, ' ')
	if sp == -1 {
		return tail, ""
	}
	return tail[:sp], tail[sp+1:]
}

func parsePortList(expr string) []int {
	var out []int
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			loN, err1 := strconv.Atoi(lo)
			hiN, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil {
				continue
			}
			for p := loN; p <= hiN; p++ {
				out = append(out, p)
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// unescapeProbeString expands the C-style escapes (\0, \r, \n, \xHH, ...)
// the q// payload format allows so the bytes actually sent on the wire
// match what nmap-service-probes describes.
func unescapeProbeString(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			out = append(out, s[i])
			continue
		}
		i++
		switch s[i] {
		case '0':
			out = append(out, 0)
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'x':
			if i+2 < len(s) {
				if b, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
					out = append(out, byte(b))
					i += 2
				}
			}
		default:
			out = append(out, s[i])
		}
	}
	return out
}

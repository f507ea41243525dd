package pipeline

import (
	"net"

	"scancore/internal/model"

	"scancore/internal/pkg/logger"
)

// CDNPolicy selects how CDNFilter treats a range match.
type CDNPolicy uint8

const (
	// CDNPolicyDefault drops a target only when it matches the built-in
	// CDN range table; custom ranges have no effect under this policy.
	CDNPolicyDefault CDNPolicy = iota
	// CDNPolicyWhitelist keeps ONLY targets that match a configured range.
	CDNPolicyWhitelist
	// CDNPolicyBlacklist drops every target that matches a configured range.
	CDNPolicyBlacklist
)

// CDNFilter removes targets falling inside known CDN ranges, run as a
// single shared stage between target expansion and probe construction
// (spec.md §5: "the historical bug that motivated this spec was filter
// logic existing on only one of two entry paths"). Calling Apply twice on
// the same target list is idempotent — a target already absent can't be
// removed again, and presence is decided purely by range membership, not by
// any stateful counter.
type CDNFilter struct {
	policy CDNPolicy
	ranges []*net.IPNet
}

// wellKnownCDNRanges is a small, representative sample standing in for a
// full CDN-range feed (Cloudflare/Fastly/Akamai/CloudFront anycast blocks);
// spec.md leaves the feed's sourcing external to the core.
var wellKnownCDNRanges = []string{
	"104.16.0.0/13", // Cloudflare
	"172.64.0.0/13", // Cloudflare
	"151.101.0.0/16", // Fastly
	"13.32.0.0/15",   // CloudFront
	"23.0.0.0/12",    // Akamai
}

// NewCDNFilter builds a filter. Under CDNPolicyDefault the built-in table is
// used and extra is ignored; under the whitelist and blacklist policies
// extra alone supplies the ranges.
func NewCDNFilter(policy CDNPolicy, extra []string) *CDNFilter {
	f := &CDNFilter{policy: policy}
	specs := wellKnownCDNRanges
	if policy != CDNPolicyDefault {
		specs = extra
	}
	for _, s := range specs {
		if _, ipnet, err := net.ParseCIDR(s); err == nil {
			f.ranges = append(f.ranges, ipnet)
		}
	}
	return f
}

func (f *CDNFilter) matches(addr net.IP) bool {
	for _, r := range f.ranges {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// Apply subtracts (or, under CDNPolicyWhitelist, restricts to) CDN-range
// members, returning a new slice; targets is never mutated in place.
func (f *CDNFilter) Apply(targets []*model.Target) []*model.Target {
	if f == nil || len(f.ranges) == 0 {
		return targets
	}
	out := make([]*model.Target, 0, len(targets))
	dropped := 0
	for _, t := range targets {
		inRange := f.matches(t.Addr)
		keep := inRange != (f.policy == CDNPolicyBlacklist || f.policy == CDNPolicyDefault)
		if f.policy == CDNPolicyWhitelist {
			keep = inRange
		}
		if keep {
			out = append(out, t)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		logger.LogSystemEvent("pipeline", "cdn_filter", "targets dropped as CDN ranges", logger.InfoLevel,
			map[string]interface{}{"dropped": dropped, "remaining": len(out)})
	}
	return out
}

package detection

import (
	"regexp"
	"strings"

	"scancore/internal/model"
)

// tokenRegexp finds one p//v//i//h//o//d//cpe:/ version-info token; group 1
// is the letter, group 2 the delimiter-bounded payload.
var tokenRegexp = regexp.MustCompile(`([pvihod]|cpe:)/([^/]*)/a?`)

// applyMatch renders one MatchRule against response, substituting captured
// groups ($1, $2, ...) into the rule's version-info template the way nmap's
// p//v//i// tokens do.
func applyMatch(rule *MatchRule, response []byte) (*model.ServiceInfo, bool) {
	loc := rule.Pattern.FindSubmatch(response)
	if loc == nil {
		return nil, false
	}

	info := &model.ServiceInfo{Name: rule.Service}
	confidence := 0.6
	if rule.Soft {
		confidence = 0.35
	}

	for _, tok := range tokenRegexp.FindAllStringSubmatch(rule.VersionInfo, -1) {
		kind, tmpl := tok[1], tok[2]
		value := expandBackrefs(tmpl, loc)
		switch kind {
		case "p":
			info.Product = value
		case "v":
			info.Version = value
		case "i":
			info.ExtraInfo = value
		case "o":
			info.OSHint = value
		case "cpe:":
			info.CPE = value
		}
	}
	if info.Product != "" || info.Version != "" {
		confidence = maxFloat(confidence, 0.85)
	}
	info.Confidence = confidence
	return info, true
}

func expandBackrefs(tmpl string, groups [][]byte) string {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] == '$' && i+1 < len(tmpl) && tmpl[i+1] >= '1' && tmpl[i+1] <= '9' {
			idx := int(tmpl[i+1] - '0')
			if idx < len(groups) {
				b.Write(groups[idx])
			}
			i++
			continue
		}
		b.WriteByte(tmpl[i])
	}
	return b.String()
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// MatchResponse tries every probe's match and softmatch rules against
// response in order, returning the first hard match; if none hits, the
// best (highest-confidence) softmatch is returned instead. This mirrors
// nmap's own match-before-softmatch precedence.
func MatchResponse(probes []*ProbeDef, response []byte) (*model.ServiceInfo, bool) {
	var best *model.ServiceInfo
	for _, p := range probes {
		for _, m := range p.Matches {
			if info, ok := applyMatch(m, response); ok {
				return info, true
			}
		}
	}
	for _, p := range probes {
		for _, m := range p.SoftMatch {
			if info, ok := applyMatch(m, response); ok {
				if best == nil || info.Confidence > best.Confidence {
					best = info
				}
			}
		}
	}
	if best != nil {
		return best, true
	}
	return nil, false
}

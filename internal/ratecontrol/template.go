package ratecontrol

import "time"

// Template is one of the T0-T5 timing presets (spec.md §4.3). It seeds the
// per-target RTT bounds, retry budget, inter-probe delay, and the default
// --max-rate a scan runs at absent an explicit override.
type Template struct {
	Name             string
	InitialTimeout   time.Duration
	MaxTimeout       time.Duration
	Retries          int
	InterProbeDelay  time.Duration
	DefaultMaxRate   float64
}

// Named templates, T0 Paranoid through T5 Insane.
var (
	T0 = Template{"T0 Paranoid", 5 * time.Minute, 5 * time.Minute, 5, 5 * time.Minute, 100}
	T1 = Template{"T1 Sneaky", 15 * time.Second, 15 * time.Second, 5, 15 * time.Second, 1_000}
	T2 = Template{"T2 Polite", time.Second, 10 * time.Second, 5, 400 * time.Millisecond, 10_000}
	T3 = Template{"T3 Normal", time.Second, 10 * time.Second, 2, 0, 50_000}
	T4 = Template{"T4 Aggressive", 500 * time.Millisecond, 1250 * time.Millisecond, 6, 0, 100_000}
	T5 = Template{"T5 Insane", 250 * time.Millisecond, 300 * time.Millisecond, 2, 0, 1_000_000}
)

var templatesByIndex = []Template{T0, T1, T2, T3, T4, T5}

// TemplateByIndex resolves -T0..-T5. It clamps out-of-range indices to the
// nearest valid template (T0 or T5) rather than erroring: a CLI typo
// degrading to a neighbouring template is safer than aborting a
// long-running scan.
func TemplateByIndex(n int) Template {
	if n < 0 {
		n = 0
	}
	if n > 5 {
		n = 5
	}
	return templatesByIndex[n]
}

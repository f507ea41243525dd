package pipeline

import (
	"github.com/projectdiscovery/blackrock"
)

// Permuter yields a deterministic, keyed pseudo-random bijection over
// [0, n) — spec.md §3's BlackRock requirement: probes land in permuted
// order so an observer watching the wire cannot infer the original target
// list ordering, while every index is visited exactly once.
type Permuter struct {
	br blackrock.Blackrock
	n  int64
}

// NewPermuter builds a permutation over n elements keyed by seed. seed
// should vary per scan run (e.g. derived from a scan-run UUID) so repeated
// scans of the same target set don't replay an identical probe order.
func NewPermuter(n int64, seed int64) *Permuter {
	if n <= 0 {
		n = 1
	}
	return &Permuter{br: blackrock.New(n, seed), n: n}
}

// At returns the permuted index for sequence position i, 0 <= i < n.
func (p *Permuter) At(i int64) int64 {
	return p.br.Shuffle(i)
}

// Len reports how many elements this permutation covers.
func (p *Permuter) Len() int64 {
	return p.n
}

package novelty

import (
	"math"
	"sync"
)

// =============================================================================
// CATEGORY PRIOR
// =============================================================================

// Prior holds the per-run category counts the Bayesian surprise term is
// computed against. Seed it from the user's belief history, then Observe
// each assessed insight so repeats within a run grow progressively less
// surprising. Safe for concurrent use.
type Prior struct {
	mu     sync.Mutex
	counts map[string]int
	total  int
}

// NewPrior returns an empty prior: maximum ignorance, uniform after
// smoothing.
func NewPrior() *Prior {
	return &Prior{counts: make(map[string]int)}
}

// Observe records one occurrence of a category. Unknown categories count
// toward general so the support stays closed.
func (p *Prior) Observe(category string) {
	if !knownCategory(category) {
		category = CategoryGeneral
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[category]++
	p.total++
}

// Count returns the observations recorded for a category.
func (p *Prior) Count(category string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[category]
}

// Total returns the number of observations across all categories.
func (p *Prior) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

func (p *Prior) snapshot() (map[string]int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[string]int, len(p.counts))
	for k, v := range p.counts {
		counts[k] = v
	}
	return counts, p.total
}

func knownCategory(category string) bool {
	for _, c := range categoryOrder {
		if c == category {
			return true
		}
	}
	return false
}

// =============================================================================
// BAYESIAN SURPRISE
// =============================================================================

// bayesianSurprise measures how much observing one insight of the given
// category would shift the prior: the KL divergence (nats) between the
// add-one-smoothed category distributions after and before the observation,
// squashed to [0,1] by 1 - exp(-KL/scale).
//
// The divergence shrinks as the prior accumulates mass, so a user with a
// long history is harder to surprise than a fresh one.
func bayesianSurprise(p *Prior, category string, scale float64) float64 {
	if !knownCategory(category) {
		category = CategoryGeneral
	}
	if scale <= 0 {
		scale = 0.05
	}

	counts, total := p.snapshot()
	k := float64(len(categoryOrder))
	beforeDenom := float64(total) + k
	afterDenom := float64(total) + 1 + k

	var kl float64
	for _, c := range categoryOrder {
		n := float64(counts[c])
		before := (n + 1) / beforeDenom
		after := (n + 1) / afterDenom
		if c == category {
			after = (n + 2) / afterDenom
		}
		kl += after * math.Log(after/before)
	}
	if kl < 0 {
		// Float error only; KL is non-negative.
		kl = 0
	}
	return 1 - math.Exp(-kl/scale)
}

// Package novelty implements the hybrid novelty gate: semantic surprisal
// against the user's belief memory blended with Bayesian surprise over their
// insight-category history. An insight passes the gate when the blend
// reaches the configured threshold; everything below is boring, already
// known rather than wrong.
//
// The gate never blocks a run. When the belief store is unreachable the
// assessment degrades to an empty prior, where everything is novel.
package novelty

import (
	"context"
	"math"
	"strings"

	"datanerd/internal/config"
	"datanerd/internal/embedding"
	"datanerd/internal/logging"
	"datanerd/internal/types"
)

// BeliefReader is the slice of the belief store the gate needs.
type BeliefReader interface {
	// ComputeSurprisal returns 1 - max(similarity) over the user's topK
	// nearest beliefs, with the neighbors it compared against.
	ComputeSurprisal(ctx context.Context, userID, datasetID string, vec []float32, topK int) (float64, []types.ScoredBelief, error)

	// ListBeliefs returns the user's beliefs newest first, for prior seeding.
	ListBeliefs(ctx context.Context, userID, datasetID string, limit int) ([]types.Belief, error)
}

// Assessment is one insight's novelty verdict. Field names mirror the run
// blackboard so the orchestrator copies them across verbatim.
type Assessment struct {
	SemanticSurprisal float64
	BayesianSurprise  float64
	HybridNovelty     float64
	Threshold         float64
	IsNovel           bool
	Category          string
	Neighbors         []types.ScoredBelief // beliefs the surprisal was scored against
	Degraded          bool                 // belief store was unreachable, surprisal defaulted to 1.0
}

// Engine scores insights for novelty. Safe for concurrent use; per-run
// mutable state lives in the Prior the caller threads through.
type Engine struct {
	store BeliefReader
	embed embedding.Engine

	semanticW float64
	bayesianW float64
	threshold float64
	topK      int
	klScale   float64
	seedLimit int
}

// NewEngine builds a gate from configuration, normalizing the weights to
// sum to 1 and filling unset knobs with defaults.
func NewEngine(cfg config.NoveltyConfig, store BeliefReader, embed embedding.Engine) *Engine {
	e := &Engine{
		store:     store,
		embed:     embed,
		semanticW: math.Max(cfg.SemanticWeight, 0),
		bayesianW: math.Max(cfg.BayesianWeight, 0),
		threshold: cfg.Threshold,
		topK:      cfg.TopK,
		klScale:   cfg.KLScale,
		seedLimit: 200,
	}
	if e.semanticW == 0 && e.bayesianW == 0 {
		e.semanticW, e.bayesianW = 0.6, 0.4
	}
	if sum := e.semanticW + e.bayesianW; sum != 1 {
		e.semanticW /= sum
		e.bayesianW /= sum
	}
	if e.threshold <= 0 {
		e.threshold = 0.35
	}
	if e.topK <= 0 {
		e.topK = 5
	}
	if e.klScale <= 0 {
		e.klScale = 0.05
	}
	return e
}

// Threshold returns the hybrid score an insight must reach to count as
// novel.
func (e *Engine) Threshold() float64 { return e.threshold }

// SeedPrior builds the run's category prior from the user's belief history.
// A store failure seeds an empty prior, the maximum-ignorance baseline.
func (e *Engine) SeedPrior(ctx context.Context, userID, datasetID string) *Prior {
	prior := NewPrior()
	beliefs, err := e.store.ListBeliefs(ctx, userID, datasetID, e.seedLimit)
	if err != nil {
		logging.NoveltyWarn("Prior seeding failed for user %s, starting empty: %v", userID, err)
		return prior
	}
	for _, b := range beliefs {
		prior.Observe(DetectTextCategory(b.Text))
	}
	logging.NoveltyDebug("Seeded prior for user %s from %d beliefs", userID, prior.Total())
	return prior
}

// Assess scores one insight against the user's memory and the run prior.
// It never fails: embedding or store trouble degrades to maximal semantic
// surprisal with a warning. The prior is read, not updated; call
// prior.Observe with the returned category once the insight is recorded.
func (e *Engine) Assess(ctx context.Context, userID, datasetID string, insight types.InsightState, prior *Prior) Assessment {
	a := Assessment{
		Threshold: e.threshold,
		Category:  DetectCategory(insight),
	}

	text := strings.TrimSpace(insight.Description)
	if text == "" {
		logging.NoveltyDebug("Insight has no description; treating as maximally surprising")
		a.SemanticSurprisal = 1.0
	} else if vec, err := e.embed.Embed(ctx, text); err != nil {
		logging.NoveltyWarn("Embedding failed, degrading to maximal surprisal: %v", err)
		a.SemanticSurprisal = 1.0
		a.Degraded = true
	} else {
		surprisal, neighbors, err := e.store.ComputeSurprisal(ctx, userID, datasetID, vec, e.topK)
		if err != nil {
			logging.NoveltyWarn("Belief store unreachable, degrading to maximal surprisal: %v", err)
			a.SemanticSurprisal = 1.0
			a.Degraded = true
		} else {
			a.SemanticSurprisal = surprisal
			a.Neighbors = neighbors
		}
	}

	a.BayesianSurprise = bayesianSurprise(prior, a.Category, e.klScale)

	hybrid := e.semanticW*a.SemanticSurprisal + e.bayesianW*a.BayesianSurprise
	if hybrid < 0 {
		hybrid = 0
	}
	if hybrid > 1 {
		hybrid = 1
	}
	a.HybridNovelty = hybrid
	a.IsNovel = hybrid >= e.threshold

	logging.Novelty("Assessed insight (user=%s, category=%s): semantic=%.3f bayesian=%.3f hybrid=%.3f novel=%v",
		userID, a.Category, a.SemanticSurprisal, a.BayesianSurprise, a.HybridNovelty, a.IsNovel)
	return a
}

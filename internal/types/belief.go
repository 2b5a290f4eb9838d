package types

import (
	"math"
	"time"
)

// =============================================================================
// BELIEF MEMORY
// =============================================================================

// BeliefSource records how a belief entered the store. Provenance drives the
// default confidence a belief starts with.
type BeliefSource string

const (
	SourceUserConfirmed    BeliefSource = "user_confirmed"    // user said "I know this"
	SourceUserDismissed    BeliefSource = "user_dismissed"    // user waved the insight away
	SourceUserAccepted     BeliefSource = "user_accepted"     // user kept an approved insight
	SourceDocumentIngested BeliefSource = "document_ingested" // chunked from a watched document
	SourceAutoGenerated    BeliefSource = "auto_generated"    // recorded by the pipeline itself
)

// ValidBeliefSource reports whether s is one of the known provenance values.
func ValidBeliefSource(s BeliefSource) bool {
	switch s {
	case SourceUserConfirmed, SourceUserDismissed, SourceUserAccepted,
		SourceDocumentIngested, SourceAutoGenerated:
		return true
	}
	return false
}

// DefaultConfidence returns the starting confidence for a belief of the given
// provenance. Direct user signals start near certainty; ingested and derived
// beliefs start lower and earn their keep through recall.
func DefaultConfidence(source BeliefSource) float64 {
	switch source {
	case SourceUserConfirmed, SourceUserDismissed:
		return 0.99
	case SourceUserAccepted:
		return 0.7
	case SourceDocumentIngested:
		return 0.6
	default:
		return 0.5
	}
}

const (
	// DefaultDecayRate is the per-day exponential decay constant applied to
	// belief confidence when none is set explicitly.
	DefaultDecayRate = 0.01

	// MinEffectiveConfidence floors decayed confidence so old beliefs fade
	// rather than vanish.
	MinEffectiveConfidence = 0.1

	// EmbeddingDimensions is the vector width every embedding engine must
	// produce. The belief store rejects vectors of any other length.
	EmbeddingDimensions = 1024
)

// Belief is one remembered statement about a user's data. Rows are immutable
// once written; confidence decay is computed at read time from CreatedAt, so
// the store never rewrites a belief to age it.
type Belief struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	DatasetID string       `json:"dataset_id,omitempty"` // empty means the belief spans datasets
	Text      string       `json:"text"`
	Embedding []float32    `json:"-"` // stored as a binary blob, never serialized in API payloads
	Source    BeliefSource `json:"source"`
	Confidence float64     `json:"confidence"` // confidence at CreatedAt, before decay
	CreatedAt  time.Time   `json:"created_at"` // always UTC
	DecayRate  float64     `json:"decay_rate"` // per-day; zero means the belief never decays
}

// EffectiveConfidence returns the belief's confidence after exponential decay
// at the given instant: confidence * exp(-rate * days), floored at
// MinEffectiveConfidence. A negative decay rate is treated as zero, and a
// belief from the future decays as if brand new.
func (b *Belief) EffectiveConfidence(now time.Time) float64 {
	rate := b.DecayRate
	if rate < 0 {
		rate = 0
	}
	days := now.Sub(b.CreatedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	eff := b.Confidence * math.Exp(-rate*days)
	if eff < MinEffectiveConfidence {
		return MinEffectiveConfidence
	}
	return eff
}

// ScoredBelief is a belief returned from a similarity query, annotated with
// its cosine similarity to the query vector and its decayed confidence at
// query time.
type ScoredBelief struct {
	Belief
	Similarity float64 `json:"similarity"`
	Effective  float64 `json:"effective_confidence"` // EffectiveConfidence evaluated at query time
}

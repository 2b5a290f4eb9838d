package config

// NoveltyConfig configures the hybrid novelty gate.
// SemanticWeight + BayesianWeight must sum to 1.0.
type NoveltyConfig struct {
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight,omitempty"`
	BayesianWeight float64 `yaml:"bayesian_weight" json:"bayesian_weight,omitempty"`

	// An insight is novel when the hybrid score reaches this threshold
	Threshold float64 `yaml:"threshold" json:"threshold,omitempty"`

	// How many prior beliefs to retrieve for surprisal
	TopK int `yaml:"top_k" json:"top_k,omitempty"`

	// KL divergence (nats) at which Bayesian surprise reaches ~63%.
	// Squash: surprise = 1 - exp(-KL/scale). Single-observation KLs over a
	// Dirichlet-smoothed category prior sit around 0.005-0.04, so the scale
	// stays small.
	KLScale float64 `yaml:"kl_scale" json:"kl_scale,omitempty"`
}

package config

// AnalysisConfig configures the analysis graph.
type AnalysisConfig struct {
	// Hard cap on graph iterations before forced synthesis
	MaxIterations int `yaml:"max_iterations" json:"max_iterations,omitempty"`

	// Per-question execution retry budget
	MaxRetries int `yaml:"max_retries" json:"max_retries,omitempty"`

	// Per-question critique revision budget (separate from execution retries)
	MaxCritiqueRetries int `yaml:"max_critique_retries" json:"max_critique_retries,omitempty"`

	// How many questions the planner generates up front
	MaxQuestions int `yaml:"max_questions" json:"max_questions,omitempty"`

	// Minimum critique score for an insight to pass review
	PassThreshold float64 `yaml:"pass_threshold" json:"pass_threshold,omitempty"`
}

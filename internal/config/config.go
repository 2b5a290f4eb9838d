package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all dataNERD configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Belief store configuration
	Beliefs BeliefsConfig `yaml:"beliefs"`

	// Novelty gating configuration
	Novelty NoveltyConfig `yaml:"novelty"`

	// Analysis graph configuration
	Analysis AnalysisConfig `yaml:"analysis"`

	// Integration services
	Integrations IntegrationsConfig `yaml:"integrations"`

	// Execution settings
	Execution ExecutionConfig `yaml:"execution"`

	// Run archive
	Runs RunsConfig `yaml:"runs"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "dataNERD",
		Version: "1.2.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			BaseURL:  "https://generativelanguage.googleapis.com/v1beta",
			Timeout:  "120s",
		},

		Embedding: EmbeddingConfig{
			Provider:   "gemini",
			Model:      "gemini-embedding-001",
			Dimensions: 1024,
			TaskType:   "SEMANTIC_SIMILARITY",
			BaseURL:    "http://localhost:11434",
		},

		Beliefs: BeliefsConfig{
			DatabasePath: "data/datanerd.db",
			DecayRate:    0.01,
			ChunkSize:    1200,
			ChunkOverlap: 200,
		},

		Novelty: NoveltyConfig{
			SemanticWeight: 0.6,
			BayesianWeight: 0.4,
			Threshold:      0.35,
			TopK:           5,
			KLScale:        0.05,
		},

		Analysis: AnalysisConfig{
			MaxIterations:      50,
			MaxRetries:         3,
			MaxCritiqueRetries: 2,
			MaxQuestions:       8,
			PassThreshold:      0.6,
		},

		Integrations: IntegrationsConfig{
			Runner: RunnerIntegration{
				Enabled: true,
				BaseURL: "http://localhost:8090",
				Timeout: "120s",
			},
			Dataset: DatasetIntegration{
				Enabled: true,
				BaseURL: "http://localhost:8091",
				Timeout: "30s",
			},
		},

		Execution: ExecutionConfig{
			Mode:           "http",
			DefaultTimeout: "120s",
			AllowedImports: []string{
				"fmt", "math", "sort", "strings", "strconv", "errors", "encoding/json",
			},
		},

		Runs: RunsConfig{
			DatabasePath: "data/runs.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "datanerd.log",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Gemini key serves both the LLM and the embedding engine
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = key
		}
	}

	// Integration URLs from environment
	if url := os.Getenv("RUNNER_URL"); url != "" {
		c.Integrations.Runner.BaseURL = url
	}
	if url := os.Getenv("DATASET_URL"); url != "" {
		c.Integrations.Dataset.BaseURL = url
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		c.Embedding.BaseURL = url
	}

	// Database paths from environment
	if path := os.Getenv("DATANERD_DB"); path != "" {
		c.Beliefs.DatabasePath = path
	}
	if path := os.Getenv("DATANERD_RUNS_DB"); path != "" {
		c.Runs.DatabasePath = path
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetExecutionTimeout returns the default execution timeout as a duration.
func (c *Config) GetExecutionTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.DefaultTimeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetRunnerTimeout returns the runner service timeout as a duration.
func (c *Config) GetRunnerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Integrations.Runner.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetDatasetTimeout returns the dataset service timeout as a duration.
func (c *Config) GetDatasetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Integrations.Dataset.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ValidEmbeddingProviders lists all supported embedding providers.
var ValidEmbeddingProviders = []string{"gemini", "ollama", "null"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or llm.api_key)")
	}

	validProvider := false
	for _, p := range ValidEmbeddingProviders {
		if c.Embedding.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid embedding provider: %s (valid: %v)", c.Embedding.Provider, ValidEmbeddingProviders)
	}

	if sum := c.Novelty.SemanticWeight + c.Novelty.BayesianWeight; math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("novelty weights must sum to 1.0, got %.4f", sum)
	}
	if c.Novelty.Threshold < 0 || c.Novelty.Threshold > 1 {
		return fmt.Errorf("novelty threshold must be in [0,1], got %.4f", c.Novelty.Threshold)
	}

	if c.Analysis.MaxIterations < 1 {
		return fmt.Errorf("analysis.max_iterations must be >= 1")
	}
	if c.Analysis.MaxRetries < 0 {
		return fmt.Errorf("analysis.max_retries must be >= 0")
	}

	if c.Execution.Mode != "http" && c.Execution.Mode != "local" {
		return fmt.Errorf("invalid execution mode: %s (valid: http, local)", c.Execution.Mode)
	}

	return nil
}

// IsRunnerEnabled returns whether the sandboxed runner integration is enabled.
func (c *Config) IsRunnerEnabled() bool {
	return c.Integrations.Runner.Enabled
}

// IsDatasetServiceEnabled returns whether the dataset service integration is enabled.
func (c *Config) IsDatasetServiceEnabled() bool {
	return c.Integrations.Dataset.Enabled
}

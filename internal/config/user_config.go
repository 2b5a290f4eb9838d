package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// UserConfig holds user-specific dataNERD settings from .dnerd/config.json.
// The YAML config (Config) configures the system; this file carries the
// per-user knobs: who the beliefs belong to, keys, and UI preferences.
type UserConfig struct {
	// =========================================================================
	// IDENTITY
	// =========================================================================

	// UserID is the default belief owner for runs started from this machine.
	// Defaults to "local" when unset.
	UserID string `json:"user_id,omitempty"`

	// =========================================================================
	// PROVIDER KEYS
	// =========================================================================

	// Gemini key serves both the LLM and the embedding engine
	GeminiAPIKey string `json:"gemini_api_key,omitempty"`

	// Optional model override
	Model string `json:"model,omitempty"`

	// =========================================================================
	// UI SETTINGS
	// =========================================================================

	// Theme for the TUI ("light" or "dark")
	Theme string `json:"theme,omitempty"`

	// Plain disables the live progress TUI during analyze
	Plain bool `json:"plain,omitempty"`

	// =========================================================================
	// OVERRIDES
	// =========================================================================

	// Embedding engine override
	Embedding *EmbeddingConfig `json:"embedding,omitempty"`

	// Novelty gate override
	Novelty *NoveltyConfig `json:"novelty,omitempty"`

	// Analysis graph override
	Analysis *AnalysisConfig `json:"analysis,omitempty"`

	// Belief store override
	Beliefs *BeliefsConfig `json:"beliefs,omitempty"`

	// Logging configuration
	Logging *LoggingConfig `json:"logging,omitempty"`
}

// GetUserID returns the configured belief owner, defaulting to "local".
func (c *UserConfig) GetUserID() string {
	if c == nil || c.UserID == "" {
		return "local"
	}
	return c.UserID
}

// GetEmbeddingConfig returns the embedding config with defaults.
func (c *UserConfig) GetEmbeddingConfig() EmbeddingConfig {
	if c != nil && c.Embedding != nil {
		cfg := *c.Embedding
		if cfg.Provider == "" {
			cfg.Provider = "gemini"
		}
		if cfg.Model == "" {
			cfg.Model = "gemini-embedding-001"
		}
		if cfg.Dimensions == 0 {
			cfg.Dimensions = 1024
		}
		if cfg.TaskType == "" {
			cfg.TaskType = "SEMANTIC_SIMILARITY"
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434"
		}
		return cfg
	}
	return EmbeddingConfig{
		Provider:   "gemini",
		Model:      "gemini-embedding-001",
		Dimensions: 1024,
		TaskType:   "SEMANTIC_SIMILARITY",
		BaseURL:    "http://localhost:11434",
	}
}

// GetNoveltyConfig returns the novelty config with defaults.
func (c *UserConfig) GetNoveltyConfig() NoveltyConfig {
	if c != nil && c.Novelty != nil {
		cfg := *c.Novelty
		if cfg.SemanticWeight == 0 && cfg.BayesianWeight == 0 {
			cfg.SemanticWeight = 0.6
			cfg.BayesianWeight = 0.4
		}
		if cfg.Threshold == 0 {
			cfg.Threshold = 0.35
		}
		if cfg.TopK == 0 {
			cfg.TopK = 5
		}
		if cfg.KLScale == 0 {
			cfg.KLScale = 0.05
		}
		return cfg
	}
	return NoveltyConfig{
		SemanticWeight: 0.6,
		BayesianWeight: 0.4,
		Threshold:      0.35,
		TopK:           5,
		KLScale:        0.05,
	}
}

// GetAnalysisConfig returns the analysis config with defaults.
func (c *UserConfig) GetAnalysisConfig() AnalysisConfig {
	if c != nil && c.Analysis != nil {
		cfg := *c.Analysis
		if cfg.MaxIterations == 0 {
			cfg.MaxIterations = 50
		}
		if cfg.MaxRetries == 0 {
			cfg.MaxRetries = 3
		}
		if cfg.MaxCritiqueRetries == 0 {
			cfg.MaxCritiqueRetries = 2
		}
		if cfg.MaxQuestions == 0 {
			cfg.MaxQuestions = 8
		}
		if cfg.PassThreshold == 0 {
			cfg.PassThreshold = 0.6
		}
		return cfg
	}
	return AnalysisConfig{
		MaxIterations:      50,
		MaxRetries:         3,
		MaxCritiqueRetries: 2,
		MaxQuestions:       8,
		PassThreshold:      0.6,
	}
}

// GetBeliefsConfig returns the belief store config with defaults.
func (c *UserConfig) GetBeliefsConfig() BeliefsConfig {
	if c != nil && c.Beliefs != nil {
		cfg := *c.Beliefs
		if cfg.DatabasePath == "" {
			cfg.DatabasePath = "data/datanerd.db"
		}
		if cfg.DecayRate == 0 {
			cfg.DecayRate = 0.01
		}
		if cfg.ChunkSize == 0 {
			cfg.ChunkSize = 1200
		}
		if cfg.ChunkOverlap == 0 {
			cfg.ChunkOverlap = 200
		}
		return cfg
	}
	return BeliefsConfig{
		DatabasePath: "data/datanerd.db",
		DecayRate:    0.01,
		ChunkSize:    1200,
		ChunkOverlap: 200,
	}
}

// GetLogging returns logging settings with defaults.
func (c *UserConfig) GetLogging() LoggingConfig {
	if c != nil && c.Logging != nil {
		cfg := *c.Logging
		if cfg.Level == "" {
			cfg.Level = "info"
		}
		if cfg.Format == "" {
			cfg.Format = "text"
		}
		// Note: DebugMode defaults to false (production mode) unless explicitly set
		return cfg
	}
	return LoggingConfig{
		Level:     "info",
		Format:    "text",
		File:      "datanerd.log",
		DebugMode: false, // Production mode by default
	}
}

// DefaultUserConfigPath returns the default path to .dnerd/config.json.
func DefaultUserConfigPath() string {
	root, err := FindWorkspaceRoot()
	if err != nil {
		return ".dnerd/config.json"
	}
	return filepath.Join(root, ".dnerd", "config.json")
}

// FindWorkspaceRoot attempts to find the project root by looking for .dnerd or go.mod.
// If not found, returns the current working directory.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".dnerd")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

// LoadUserConfig loads configuration from .dnerd/config.json.
func LoadUserConfig(path string) (*UserConfig, error) {
	cfg := &UserConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return empty config if file doesn't exist
		}
		return nil, fmt.Errorf("failed to read user config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to .dnerd/config.json.
func (c *UserConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write user config: %w", err)
	}

	return nil
}

// GetGeminiAPIKey returns the Gemini API key with auto-detection.
// Priority order:
//  1. GEMINI_API_KEY environment variable
//  2. UserConfig.GeminiAPIKey from .dnerd/config.json
//
// Returns empty string if not configured.
func (c *UserConfig) GetGeminiAPIKey() string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}

	if c != nil && c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}

	return ""
}

// DefaultUserConfig returns a UserConfig with sensible defaults.
func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		UserID: "local",
		Theme:  "dark",
	}
}

// GlobalConfig is a convenience function to load config from the default path.
// Returns an empty config (with defaults available via Get* methods) if file doesn't exist.
func GlobalConfig() (*UserConfig, error) {
	return LoadUserConfig(DefaultUserConfigPath())
}

package config

// EmbeddingConfig configures the embedding engine behind the belief store.
// Provider "null" selects the deterministic offline engine; it is only ever
// used when configured here, never substituted silently.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" json:"provider,omitempty"` // gemini, ollama, null
	Model      string `yaml:"model" json:"model,omitempty"`
	APIKey     string `yaml:"api_key" json:"api_key,omitempty"`
	BaseURL    string `yaml:"base_url" json:"base_url,omitempty"` // Ollama endpoint
	Dimensions int    `yaml:"dimensions" json:"dimensions,omitempty"`
	TaskType   string `yaml:"task_type" json:"task_type,omitempty"` // Gemini task type hint
}

package config

// LLMConfig configures the analysis LLM.
type LLMConfig struct {
	Provider string `yaml:"provider" json:"provider,omitempty"` // gemini
	APIKey   string `yaml:"api_key" json:"api_key,omitempty"`
	Model    string `yaml:"model" json:"model,omitempty"`
	BaseURL  string `yaml:"base_url" json:"base_url,omitempty"`
	Timeout  string `yaml:"timeout" json:"timeout,omitempty"`
}

// GeminiProviderConfig holds Gemini-specific request options.
type GeminiProviderConfig struct {
	// EnableThinking enables thinking/reasoning mode
	EnableThinking bool `json:"enable_thinking,omitempty"`

	// ThinkingLevel: "minimal", "low", "medium", "high" (MUST be lowercase)
	ThinkingLevel string `json:"thinking_level,omitempty"`
}

// DefaultGeminiProviderConfig returns request options for statistical analysis
// prompts. Thinking stays off; the graph depends on structured JSON responses
// and bounded latency, not long reasoning chains.
func DefaultGeminiProviderConfig() *GeminiProviderConfig {
	return &GeminiProviderConfig{
		EnableThinking: false,
	}
}

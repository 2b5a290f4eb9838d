package config

// IntegrationsConfig configures external service integrations.
type IntegrationsConfig struct {
	// Sandboxed analysis-code runner service
	Runner RunnerIntegration `yaml:"runner" json:"runner,omitempty"`

	// Dataset metadata service
	Dataset DatasetIntegration `yaml:"dataset" json:"dataset,omitempty"`
}

// RunnerIntegration configures the sandboxed runner service.
type RunnerIntegration struct {
	Enabled bool   `yaml:"enabled" json:"enabled,omitempty"`
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`
}

// DatasetIntegration configures the dataset metadata service.
type DatasetIntegration struct {
	Enabled bool   `yaml:"enabled" json:"enabled,omitempty"`
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`
}

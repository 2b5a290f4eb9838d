package config

// RunsConfig configures the completed-run archive.
type RunsConfig struct {
	// SQLite database path (separate file from the belief store)
	DatabasePath string `yaml:"database_path" json:"database_path,omitempty"`
}

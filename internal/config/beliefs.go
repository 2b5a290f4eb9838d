package config

// BeliefsConfig configures the persistent belief store.
type BeliefsConfig struct {
	// SQLite database path
	DatabasePath string `yaml:"database_path" json:"database_path,omitempty"`

	// Default exponential decay rate per day for new beliefs
	DecayRate float64 `yaml:"decay_rate" json:"decay_rate,omitempty"`

	// Document ingestion chunking (characters)
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size,omitempty"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap,omitempty"`

	// Optional drop directory watched for documents to ingest
	WatchDir string `yaml:"watch_dir" json:"watch_dir,omitempty"`
}

package config

// ExecutionConfig configures the analysis code execution boundary.
type ExecutionConfig struct {
	// Mode selects the execution adapter: "http" (sandboxed runner service)
	// or "local" (in-process interpreter, dev and test only)
	Mode string `yaml:"mode" json:"mode,omitempty"`

	// Default timeout for a single code execution
	DefaultTimeout string `yaml:"default_timeout" json:"default_timeout,omitempty"`

	// Import whitelist for the local interpreter
	AllowedImports []string `yaml:"allowed_imports" json:"allowed_imports,omitempty"`
}

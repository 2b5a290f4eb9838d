package main

import (
	"fmt"
	"path/filepath"

	"datanerd/internal/belief"
	"datanerd/internal/config"
	"datanerd/internal/embedding"
)

// loadConfigs resolves the YAML system config and the per-user JSON config,
// then folds the user's overrides (belief owner, API key, tuning knobs) into
// the system config so every command wires from one merged view.
func loadConfigs() (*config.Config, *config.UserConfig, error) {
	path := configPath
	if path == "" {
		root, err := config.FindWorkspaceRoot()
		if err != nil {
			return nil, nil, fmt.Errorf("resolving workspace: %w", err)
		}
		path = filepath.Join(root, ".dnerd", "config.yaml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	ucfg, err := config.GlobalConfig()
	if err != nil {
		return nil, nil, err
	}

	if ucfg.Embedding != nil {
		cfg.Embedding = ucfg.GetEmbeddingConfig()
	}
	if ucfg.Novelty != nil {
		cfg.Novelty = ucfg.GetNoveltyConfig()
	}
	if ucfg.Analysis != nil {
		cfg.Analysis = ucfg.GetAnalysisConfig()
	}
	if ucfg.Beliefs != nil {
		cfg.Beliefs = ucfg.GetBeliefsConfig()
	}
	if key := ucfg.GetGeminiAPIKey(); key != "" {
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = key
		}
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = key
		}
	}
	if ucfg.Model != "" {
		cfg.LLM.Model = ucfg.Model
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, ucfg, nil
}

// resolveUserID picks the belief owner: the --user flag wins, then the
// user config, then "local".
func resolveUserID(ucfg *config.UserConfig) string {
	if userFlag != "" {
		return userFlag
	}
	return ucfg.GetUserID()
}

// usePlainOutput reports whether the live TUI is disabled for this
// invocation.
func usePlainOutput(ucfg *config.UserConfig) bool {
	return plain || (ucfg != nil && ucfg.Plain)
}

// openBeliefStore builds the embedding engine and opens the belief store.
// The caller owns closing the store.
func openBeliefStore(cfg *config.Config) (*belief.Store, embedding.Engine, error) {
	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return nil, nil, fmt.Errorf("building embedding engine: %w", err)
	}
	store, err := belief.NewStore(cfg.Beliefs, engine)
	if err != nil {
		return nil, nil, fmt.Errorf("opening belief store: %w", err)
	}
	return store, engine, nil
}

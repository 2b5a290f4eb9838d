// Package embedding provides vector embedding generation for belief memory.
// Supports multiple backends: Google GenAI (cloud), Ollama (local), and a
// deterministic null engine for offline development.
package embedding

import (
	"context"
	"fmt"
	"math"

	"datanerd/internal/config"
	"datanerd/internal/logging"
	"datanerd/internal/types"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// Engine generates vector embeddings for text. All engines emit unit-length
// vectors of a single configured dimensionality; the belief store's distance
// math assumes both properties.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// HealthChecker is an optional interface for embedding engines that support
// health checks. If an engine implements this interface, callers can verify
// availability before attempting batch operations:
//
//	if hc, ok := engine.(embedding.HealthChecker); ok {
//	    if err := hc.HealthCheck(ctx); err != nil { ... }
//	}
type HealthChecker interface {
	// HealthCheck verifies the embedding service is reachable.
	// Returns nil if healthy, error otherwise.
	HealthCheck(ctx context.Context) error
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine from configuration. The null engine
// is only ever returned when explicitly configured; a misconfigured real
// provider is an error, never a silent downgrade.
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	if cfg.Dimensions <= 0 {
		cfg.Dimensions = types.EmbeddingDimensions
	}

	logging.Embedding("Creating embedding engine: provider=%s model=%s dims=%d",
		cfg.Provider, cfg.Model, cfg.Dimensions)

	switch cfg.Provider {
	case "gemini":
		return NewGenAIEngine(cfg.APIKey, cfg.Model, cfg.TaskType, cfg.Dimensions)
	case "ollama":
		return NewOllamaEngine(cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case "null":
		logging.EmbeddingWarn("Null embedding engine selected: vectors are deterministic hashes, not semantic")
		return NewNullEngine(cfg.Dimensions), nil
	default:
		logging.EmbeddingError("Unsupported embedding provider: %s", cfg.Provider)
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'gemini', 'ollama' or 'null')", cfg.Provider)
	}
}

// =============================================================================
// VECTOR UTILITIES
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		aMagnitude += float64(a[i]) * float64(a[i])
		bMagnitude += float64(b[i]) * float64(b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		logging.EmbeddingWarn("CosineSimilarity: zero magnitude vector detected")
		return 0, nil
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}

// NormalizeL2 scales vec to unit length in place and returns it. Zero vectors
// pass through unchanged.
func NormalizeL2(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return vec
}

// fitDimensions truncates or zero-pads vec to want entries. Truncation keeps
// the vector usable because the supported models train Matryoshka-style
// prefixes; callers must re-normalize afterward.
func fitDimensions(vec []float32, want int) []float32 {
	if want <= 0 || len(vec) == want {
		return vec
	}
	if len(vec) > want {
		return vec[:want]
	}
	out := make([]float32, want)
	copy(out, vec)
	return out
}

// SimilarityResult represents a similarity search result.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK returns the indices of the top K most similar vectors to the query,
// ranked by cosine similarity. Vectors with mismatched dimensions are skipped.
func FindTopK(query []float32, corpus [][]float32, k int) ([]SimilarityResult, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "FindTopK")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}

	logging.EmbeddingDebug("FindTopK: searching for top %d in corpus of %d vectors (query dim=%d)",
		k, len(corpus), len(query))

	results := make([]SimilarityResult, 0, len(corpus))
	skipped := 0
	for i, vec := range corpus {
		similarity, err := CosineSimilarity(query, vec)
		if err != nil {
			skipped++
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: similarity})
	}
	if skipped > 0 {
		logging.EmbeddingWarn("FindTopK: skipped %d vectors due to dimension mismatch", skipped)
	}

	// Partial selection sort: only the first K positions need to be ordered.
	for i := 0; i < len(results) && i < k; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

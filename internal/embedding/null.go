package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	"datanerd/internal/types"
)

// =============================================================================
// NULL EMBEDDING ENGINE
// =============================================================================

// NullEngine produces deterministic pseudo-random unit vectors derived from a
// hash of the input text. Identical texts map to identical vectors, so exact
// duplicate detection still works; there is no semantic structure beyond
// that. Selected only by explicit configuration, for offline development and
// tests that need the full pipeline without a provider.
type NullEngine struct {
	dims int
}

// NewNullEngine creates a null engine emitting vectors of the given width.
func NewNullEngine(dims int) *NullEngine {
	if dims <= 0 {
		dims = types.EmbeddingDimensions
	}
	return &NullEngine{dims: dims}
}

// Embed generates a deterministic unit vector from the text's FNV-1a hash,
// expanded through a splitmix64 stream.
func (e *NullEngine) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	state := h.Sum64()

	vec := make([]float32, e.dims)
	for i := range vec {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
		vec[i] = float32(float64(z>>11)/float64(1<<53)*2 - 1)
	}
	return NormalizeL2(vec), nil
}

// EmbedBatch generates deterministic vectors for multiple texts.
func (e *NullEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *NullEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *NullEngine) Name() string {
	return fmt.Sprintf("null:%d", e.dims)
}

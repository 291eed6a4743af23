// Package embedding contains the embedding provider adapters used by
// the retrieval core, plus the caching and failure-protection wrappers
// that sit in front of the live providers.
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
)

// Provider generates fixed-dimension embedding vectors for text. The
// retrieval core treats providers as opaque: any failure is surfaced to
// the caller as a provider error, never retried.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Model() string
}

// DeterministicProvider produces stable pseudo-embeddings derived from
// a hash of the input text: identical text always yields an identical,
// L2-normalized vector. Used in tests and for local development
// without provider credentials.
type DeterministicProvider struct {
	dimensions int
}

// NewDeterministicProvider creates a deterministic provider with the
// given output dimension
func NewDeterministicProvider(dimensions int) (*DeterministicProvider, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &DeterministicProvider{dimensions: dimensions}, nil
}

// Embed implements Provider.Embed
func (p *DeterministicProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vector := make([]float32, p.dimensions)
	var norm float64
	for i := range vector {
		v := rng.Float64()*2 - 1
		vector[i] = float32(v)
		norm += v * v
	}

	// L2-normalize so cosine similarity of identical text is exactly 1
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vector {
			vector[i] = float32(float64(vector[i]) / norm)
		}
	}

	return vector, nil
}

// Dimensions implements Provider.Dimensions
func (p *DeterministicProvider) Dimensions() int {
	return p.dimensions
}

// Model implements Provider.Model
func (p *DeterministicProvider) Model() string {
	return "deterministic"
}

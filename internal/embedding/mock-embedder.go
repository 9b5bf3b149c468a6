package embedding

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"

	"github.com/thesandybridge/kb-index/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// vector derived from the text hash so that the same text always gets the same embedding.
// Vectors registered with Set take precedence, and Fail makes chosen texts error.
type MockEmbedder struct {
	dimensions int
	calls      atomic.Int64

	mu    sync.RWMutex
	fixed map[string][]float32
	fail  map[string]error
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 8
	}
	return &MockEmbedder{
		dimensions: dimensions,
		fixed:      make(map[string][]float32),
		fail:       make(map[string]error),
	}
}

// Set makes Embed(text) return v.
func (e *MockEmbedder) Set(text string, v []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fixed[text] = v
}

// Fail makes Embed(text) return err.
func (e *MockEmbedder) Fail(text string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail[text] = err
}

// Calls returns how many texts have been embedded.
func (e *MockEmbedder) Calls() int { return int(e.calls.Load()) }

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.calls.Add(1)
	e.mu.RLock()
	fixed, hasFixed := e.fixed[text]
	failErr := e.fail[text]
	e.mu.RUnlock()
	if failErr != nil {
		return nil, failErr
	}
	if hasFixed {
		return append([]float32(nil), fixed...), nil
	}

	seed := float64(xxh3.HashString(text) % 1_000_003)
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(seed*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

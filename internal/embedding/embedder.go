// Package embedding provides text embeddings from an OpenAI-compatible provider, an LRU
// memo in front of it and a deterministic mock.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding size, or 0 while it is not known yet.
	Dimensions() int
	Close() error
}

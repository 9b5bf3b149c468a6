// Package vectorstore synchronizes chunk embeddings with a vector database collection.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/internal/config"
)

// MetadataSource is the metadata key holding a chunk's source file path.
const MetadataSource = "source"

// Metadata is the per-item metadata stored alongside a document.
type Metadata map[string]string

// Item is one chunk to be stored.
type Item struct {
	ID        string
	Document  string
	Embedding []float32
	Metadata  Metadata
}

// Match is one query result. Lower Distance means more similar.
type Match struct {
	ID       string   `json:"id,omitempty"`
	Document string   `json:"content"`
	Metadata Metadata `json:"metadata,omitempty"`
	Distance float64  `json:"distance"`
}

// Source returns the source path recorded for the match, or "unknown".
func (m Match) Source() string {
	if s, ok := m.Metadata[MetadataSource]; ok && s != "" {
		return s
	}
	return "unknown"
}

// Store is a named collection in a vector database.
type Store interface {
	// EnsureCollection creates the collection; an existing collection is not an error.
	EnsureCollection(ctx context.Context) error
	// CollectionID resolves the collection name to its id.
	CollectionID(ctx context.Context) (string, error)
	// Add stores one item.
	Add(ctx context.Context, item Item) error
	// Query returns at most topK items nearest to embedding, nearest first.
	Query(ctx context.Context, embedding []float32, topK int) ([]Match, error)
	// Delete removes the items with the given ids.
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// New returns the Store selected by cfg.VectorStore.Backend.
func New(cfg *config.Config, logger *zap.Logger) (Store, error) {
	vs := cfg.VectorStore
	switch vs.Backend {
	case config.BackendChroma:
		return NewChromaStore(ChromaConfig{
			BaseURL:        vs.Host,
			Tenant:         vs.Tenant,
			Database:       vs.Database,
			Collection:     vs.Collection,
			EmbeddingModel: cfg.OpenAI.EmbeddingModel,
			Timeout:        time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		}, WithLogger(logger)), nil
	case config.BackendSQLite:
		s, err := NewSQLiteStore(vs.SQLitePath, vs.Collection, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store backend %q", config.ErrInvalid, vs.Backend)
	}
}

package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/internal/config"
	"github.com/thesandybridge/kb-index/internal/embedding"
	"github.com/thesandybridge/kb-index/internal/extract"
	"github.com/thesandybridge/kb-index/internal/indexer"
	"github.com/thesandybridge/kb-index/internal/llm"
	"github.com/thesandybridge/kb-index/internal/query"
	"github.com/thesandybridge/kb-index/internal/state"
	"github.com/thesandybridge/kb-index/internal/vectorstore"
)

// Components holds initialized services.
type Components struct {
	Snapshots *state.Store
	Store     vectorstore.Store
	Embedder  embedding.Embedder
	Completer llm.Completer
	Indexer   *indexer.Indexer
	Engine    *query.Engine
}

// Close releases the vector store and the embedder.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// initializeComponents wires every service from cfg. It fails before any network use when
// the API key is missing. The collection is created on the first write.
func initializeComponents(cfg *config.Config, logger *zap.Logger, idxOpts ...indexer.IndexerOption) (*Components, error) {
	apiKey, err := cfg.RequireAPIKey()
	if err != nil {
		return nil, err
	}
	timeout := cfg.HTTP.Timeout()

	backend, err := vectorstore.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	store := vectorstore.EnsureOnWrite(backend)

	embedder := embedding.NewCachedEmbedder(
		embedding.NewOpenAIEmbedder(cfg.OpenAI.BaseURL, apiKey, cfg.OpenAI.EmbeddingModel, timeout,
			embedding.WithLogger(logger)),
		cfg.OpenAI.CacheSize,
	)
	completer := llm.NewClient(cfg.OpenAI.BaseURL, apiKey, cfg.OpenAI.CompletionModel, timeout,
		llm.WithLogger(logger),
		llm.WithTemperature(cfg.OpenAI.ChatTemperature()))

	snapshots := state.NewStore(cfg.StateDir, state.WithLogger(logger))

	opts := []indexer.IndexerOption{
		indexer.WithLogger(logger),
		indexer.WithExtractor(extract.NewExtractor()),
		indexer.WithWalker(indexer.NewWalker(cfg.Index.Extensions, cfg.Index.IgnoreFile, logger).Exclude(cfg.Index.Exclude...)),
		indexer.WithBatchSize(cfg.Index.BatchSize),
		indexer.WithEmbedDelay(time.Duration(cfg.Index.EmbedDelayMs) * time.Millisecond),
	}
	idx := indexer.New(embedder, store, snapshots, append(opts, idxOpts...)...)

	engine := query.NewEngine(embedder, store, completer, snapshots,
		query.WithLogger(logger),
		query.WithSimilarityThreshold(cfg.Query.SimilarityThreshold),
		query.WithHistoryWindow(cfg.Query.HistoryWindow))

	return &Components{
		Snapshots: snapshots,
		Store:     store,
		Embedder:  embedder,
		Completer: completer,
		Indexer:   idx,
		Engine:    engine,
	}, nil
}

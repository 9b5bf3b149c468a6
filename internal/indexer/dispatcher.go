package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thesandybridge/kb-index/internal/state"
	"github.com/thesandybridge/kb-index/internal/vectorstore"
	"github.com/thesandybridge/kb-index/pkg/utils"
)

const (
	// DefaultBatchSize is the number of chunk pipelines run concurrently.
	DefaultBatchSize = 8
	// DefaultEmbedDelay is the pause before each embedding request.
	DefaultEmbedDelay = 100 * time.Millisecond
)

// Embedder produces the embedding of a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorWriter is the part of vectorstore.Store the indexer mutates.
type VectorWriter interface {
	Add(ctx context.Context, item vectorstore.Item) error
	Delete(ctx context.Context, ids []string) error
}

// ChunkResult is the outcome of one chunk pipeline. Record is set on success, Err on failure.
type ChunkResult struct {
	Hash   string
	Record *state.ChunkRecord
	Err    error
}

// Dispatcher embeds and stores chunks in fixed-size concurrent batches.
type Dispatcher struct {
	embedder  Embedder
	writer    VectorWriter
	batchSize int
	delay     time.Duration
	logger    *zap.Logger
	onChunk   func()
}

// NewDispatcher returns a Dispatcher. batchSize < 1 uses DefaultBatchSize; a negative
// delay disables the pause.
func NewDispatcher(embedder Embedder, writer VectorWriter, batchSize int, delay time.Duration, logger *zap.Logger) *Dispatcher {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	if delay < 0 {
		delay = 0
	}
	return &Dispatcher{
		embedder:  embedder,
		writer:    writer,
		batchSize: batchSize,
		delay:     delay,
		logger:    utils.OrNop(logger),
	}
}

// Dispatch runs one pipeline per chunk (delay, embed, assign id, add) and returns the
// results in chunk order. Each batch finishes completely before the next one starts, so at
// most batchSize pipelines are in flight. A failed pipeline never cancels its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, path string, chunks []state.Chunk) []ChunkResult {
	results := make([]ChunkResult, len(chunks))
	for start := 0; start < len(chunks); start += d.batchSize {
		end := min(start+d.batchSize, len(chunks))
		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				results[i] = d.pipeline(ctx, path, chunks[i])
				if d.onChunk != nil {
					d.onChunk()
				}
				return nil
			})
		}
		_ = g.Wait()
		d.logger.Debug("dispatcher batch done",
			zap.String("path", path), zap.Int("from", start), zap.Int("to", end))
	}
	return results
}

func (d *Dispatcher) pipeline(ctx context.Context, path string, chunk state.Chunk) ChunkResult {
	res := ChunkResult{Hash: chunk.Hash}
	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Err = ctx.Err()
			return res
		case <-timer.C:
		}
	}

	emb, err := d.embedder.Embed(ctx, chunk.Content)
	if err != nil {
		res.Err = fmt.Errorf("embed chunk %s: %w", shortHash(chunk.Hash), err)
		return res
	}

	id := uuid.NewString()
	item := vectorstore.Item{
		ID:        id,
		Document:  chunk.Content,
		Embedding: emb,
		Metadata:  vectorstore.Metadata{vectorstore.MetadataSource: path},
	}
	if err := d.writer.Add(ctx, item); err != nil {
		res.Err = fmt.Errorf("store chunk %s: %w", shortHash(chunk.Hash), err)
		return res
	}
	res.Record = &state.ChunkRecord{Hash: chunk.Hash, ID: id}
	return res
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

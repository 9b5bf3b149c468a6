// Package indexer keeps a vector store collection in sync with files on disk. Files are
// chunked, diffed against the persisted index state by content hash, and only new chunks
// are embedded and stored; chunks that disappeared are deleted.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/internal/extract"
	"github.com/thesandybridge/kb-index/internal/state"
	"github.com/thesandybridge/kb-index/pkg/utils"
)

// ProgressFunc is called after each file with the number of files processed so far.
type ProgressFunc func(path string, done, total int)

// FileResult describes what SyncFile did to one file.
type FileResult struct {
	Path      string
	Skipped   bool
	Added     int
	Unchanged int
	Deleted   int
	Failed    int
}

// Stats aggregates FileResults over a run.
type Stats struct {
	FilesSeen       int `json:"files_seen"`
	FilesSkipped    int `json:"files_skipped"`
	FilesIndexed    int `json:"files_indexed"`
	FilesFailed     int `json:"files_failed"`
	ChunksAdded     int `json:"chunks_added"`
	ChunksUnchanged int `json:"chunks_unchanged"`
	ChunksDeleted   int `json:"chunks_deleted"`
	ChunksFailed    int `json:"chunks_failed"`
}

func (s *Stats) add(r FileResult) {
	s.FilesSeen++
	if r.Skipped {
		s.FilesSkipped++
		return
	}
	s.ChunksAdded += r.Added
	s.ChunksUnchanged += r.Unchanged
	s.ChunksDeleted += r.Deleted
	s.ChunksFailed += r.Failed
}

// Indexer synchronizes files with a vector store.
type Indexer struct {
	embedder   Embedder
	store      VectorWriter
	snapshots  *state.Store
	extractor  *extract.Extractor
	walker     *Walker
	batchSize  int
	embedDelay time.Duration
	progress   ProgressFunc
	onChunk    func()
	logger     *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for per-file and per-chunk events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithExtractor sets the text extractor. Without one, files are read as plain text.
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) { idx.extractor = e }
}

// WithWalker sets the file discovery rules used by IndexPath.
func WithWalker(w *Walker) IndexerOption {
	return func(idx *Indexer) { idx.walker = w }
}

// WithBatchSize sets how many chunk pipelines run concurrently.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) { idx.batchSize = n }
}

// WithEmbedDelay sets the pause before each embedding request.
func WithEmbedDelay(d time.Duration) IndexerOption {
	return func(idx *Indexer) { idx.embedDelay = d }
}

// WithProgress registers a callback invoked after each file.
func WithProgress(fn ProgressFunc) IndexerOption {
	return func(idx *Indexer) { idx.progress = fn }
}

// WithChunkProgress registers a callback invoked after each chunk pipeline.
func WithChunkProgress(fn func()) IndexerOption {
	return func(idx *Indexer) { idx.onChunk = fn }
}

// New creates an Indexer that embeds with embedder, writes to store and persists its index
// state through snapshots.
func New(embedder Embedder, store VectorWriter, snapshots *state.Store, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		embedder:   embedder,
		store:      store,
		snapshots:  snapshots,
		batchSize:  DefaultBatchSize,
		embedDelay: DefaultEmbedDelay,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	if idx.walker == nil {
		idx.walker = NewWalker(nil, ".kbignore", idx.logger)
	}
	return idx
}

// Walker returns the file discovery rules in use.
func (idx *Indexer) Walker() *Walker { return idx.walker }

// IndexPath indexes every eligible file under root (or root itself when it is a file).
func (idx *Indexer) IndexPath(ctx context.Context, root string) (Stats, error) {
	files, err := idx.walker.Walk(root)
	if err != nil {
		return Stats{}, err
	}
	idx.logger.Info("indexing", zap.String("root", root), zap.Int("files", len(files)))
	return idx.IndexFiles(ctx, files)
}

// IndexFiles loads the index state once, syncs each file in order and saves the state once
// at the end. A failing file does not stop the run; all failures are returned joined.
// Cancelling ctx stops before the next file and still saves what was done.
func (idx *Indexer) IndexFiles(ctx context.Context, paths []string) (Stats, error) {
	var stats Stats
	st, err := idx.snapshots.LoadIndex()
	if err != nil {
		return stats, fmt.Errorf("failed to load index state: %w", err)
	}

	var errs []error
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := idx.SyncFile(ctx, st, path)
		stats.add(res)
		switch {
		case err != nil:
			stats.FilesFailed++
			errs = append(errs, err)
			idx.logger.Warn("file not fully indexed", zap.String("path", path), zap.Error(err))
		case !res.Skipped:
			stats.FilesIndexed++
		}
		if idx.progress != nil {
			idx.progress(path, i+1, len(paths))
		}
	}

	if err := idx.snapshots.SaveIndex(st); err != nil {
		errs = append(errs, fmt.Errorf("failed to save index state: %w", err))
	}
	idx.logger.Info("indexing finished",
		zap.Int("files", stats.FilesSeen),
		zap.Int("skipped", stats.FilesSkipped),
		zap.Int("chunks_added", stats.ChunksAdded),
		zap.Int("chunks_deleted", stats.ChunksDeleted),
		zap.Int("chunks_failed", stats.ChunksFailed))
	return stats, errors.Join(errs...)
}

// SyncFile brings the vector store and st in line with the current content of path.
// A file whose mtime equals the recorded one is skipped without any remote call. Stale
// chunks are deleted with a single call; if that fails the file is abandoned and its record
// left as it was. When some chunk pipelines fail the record keeps the chunks that did get
// stored but its mtime is not advanced, so the next run retries the rest.
func (idx *Indexer) SyncFile(ctx context.Context, st *state.IndexState, path string) (FileResult, error) {
	res := FileResult{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return res, fmt.Errorf("not a regular file: %s", path)
	}
	mtime := uint64(info.ModTime().Unix())
	prev, known := st.LastModified(path)
	if known && prev == mtime {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", path))
		res.Skipped = true
		return res, nil
	}

	text, err := idx.extractContent(path)
	if err != nil {
		return res, fmt.Errorf("extract %s: %w", path, err)
	}
	rec, _ := st.Record(path)
	plan := state.Diff(rec.Chunks, PrepareChunks(text))

	if len(plan.Stale) > 0 {
		if err := idx.store.Delete(ctx, plan.StaleIDs()); err != nil {
			return res, fmt.Errorf("delete stale chunks of %s: %w", path, err)
		}
		res.Deleted = len(plan.Stale)
	}

	chunks := make([]state.ChunkRecord, 0, len(plan.Unchanged)+len(plan.New))
	chunks = append(chunks, plan.Unchanged...)
	res.Unchanged = len(plan.Unchanged)

	var errs []error
	if len(plan.New) > 0 {
		d := NewDispatcher(idx.embedder, idx.store, idx.batchSize, idx.embedDelay, idx.logger)
		d.onChunk = idx.onChunk
		for _, r := range d.Dispatch(ctx, path, plan.New) {
			if r.Err != nil {
				res.Failed++
				errs = append(errs, r.Err)
				idx.logger.Warn("chunk pipeline failed",
					zap.String("path", path), zap.String("hash", shortHash(r.Hash)), zap.Error(r.Err))
				continue
			}
			chunks = append(chunks, *r.Record)
			res.Added++
		}
	}

	next := state.FileRecord{LastModified: mtime, Chunks: chunks}
	if res.Failed > 0 {
		next.LastModified = prev
	}
	st.Upsert(path, next)

	idx.logger.Debug("indexer file synced",
		zap.String("path", path),
		zap.Int("added", res.Added),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("deleted", res.Deleted),
		zap.Int("failed", res.Failed))

	if res.Failed > 0 {
		return res, fmt.Errorf("%s: %d of %d new chunks failed: %w", path, res.Failed, len(plan.New), errors.Join(errs...))
	}
	return res, nil
}

func (idx *Indexer) extractContent(path string) (string, error) {
	if idx.extractor != nil {
		return idx.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

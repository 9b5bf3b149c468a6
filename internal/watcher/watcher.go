// Package watcher re-indexes files under a directory as they change, using fsnotify and a
// debounce so that bursts of writes become one indexing batch.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/internal/indexer"
	"github.com/thesandybridge/kb-index/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// Syncer indexes a batch of files, loading and saving the index state once per call.
type Syncer interface {
	IndexFiles(ctx context.Context, paths []string) (indexer.Stats, error)
}

// Watcher watches one root recursively and hands changed files to a Syncer. Removed files
// are only logged; their index records are kept.
type Watcher struct {
	filter   *indexer.PathFilter
	syncer   Syncer
	debounce time.Duration
	onBatch  func(paths []string, stats indexer.Stats, err error)
	logger   *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	ctx     context.Context
	pending map[string]struct{}
	timer   *time.Timer
	started bool

	syncMu   sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for watch events and batch results.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long the watcher waits for writes to settle before syncing.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithBatchHook is called after every synced batch.
func WithBatchHook(fn func(paths []string, stats indexer.Stats, err error)) WatcherOption {
	return func(w *Watcher) { w.onBatch = fn }
}

// NewWatcher returns a watcher over filter's root. Only paths the filter keeps are synced.
func NewWatcher(filter *indexer.PathFilter, syncer Syncer, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		filter:   filter,
		syncer:   syncer,
		debounce: defaultDebounce,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Start begins watching. It returns once the directory tree is registered and runs until
// ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw
	w.ctx = ctx
	if err := w.addTreeLocked(w.filter.Root()); err != nil {
		_ = fw.Close()
		w.watcher = nil
		return err
	}
	w.started = true
	w.logger.Info("watching", zap.String("root", w.filter.Root()), zap.Duration("debounce", w.debounce))
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if info.Mode().IsRegular() && w.filter.Keep(path, false) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.mu.Lock()
		_, wasPending := w.pending[path]
		delete(w.pending, path)
		w.mu.Unlock()
		if wasPending || w.filter.Keep(path, false) {
			w.logger.Info("file removed; its index record is kept", zap.String("path", path))
		}
	}
}

// handleNewDirectory watches a directory created or moved under the root and queues the
// files already inside it.
func (w *Watcher) handleNewDirectory(dir string) {
	if !w.filter.Keep(dir, true) {
		return
	}
	w.mu.Lock()
	err := w.addTreeLocked(dir)
	w.mu.Unlock()
	if err != nil {
		w.logger.Warn("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if !w.filter.Keep(path, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && w.filter.Keep(path, false) {
			w.schedule(path)
		}
		return nil
	})
}

// addTreeLocked registers root and every kept directory below it. w.mu must be held.
func (w *Watcher) addTreeLocked(root string) error {
	if w.watcher == nil {
		return errors.New("watcher not started")
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if !w.filter.Keep(path, true) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// schedule queues path and restarts the debounce timer.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush syncs every queued path in one batch. Batches never overlap.
func (w *Watcher) flush() {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	w.mu.Lock()
	if len(w.pending) == 0 || !w.started {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	ctx := w.ctx
	w.mu.Unlock()

	sort.Strings(paths)
	stats, err := w.syncer.IndexFiles(ctx, paths)
	if err != nil {
		w.logger.Warn("re-index finished with errors", zap.Strings("paths", paths), zap.Error(err))
	} else {
		w.logger.Info("re-indexed",
			zap.Int("files", len(paths)),
			zap.Int("chunks_added", stats.ChunksAdded),
			zap.Int("chunks_deleted", stats.ChunksDeleted))
	}
	if w.onBatch != nil {
		w.onBatch(paths, stats, err)
	}
}

// Stop stops the watcher and drops queued paths.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = make(map[string]struct{})
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

// Run indexes root once, then watches it until ctx is done.
func Run(ctx context.Context, idx *indexer.Indexer, root string, opts ...WatcherOption) error {
	filter, err := idx.Walker().Filter(root)
	if err != nil {
		return err
	}
	w := NewWatcher(filter, idx, opts...)
	if _, err := idx.IndexPath(ctx, filter.Root()); err != nil {
		w.logger.Warn("initial index finished with errors", zap.Error(err))
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

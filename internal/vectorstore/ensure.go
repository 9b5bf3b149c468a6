package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EnsureOnWrite wraps s so that the collection is created on the first Add or Delete
// rather than up front. Runs that write nothing never touch the collection. Query on a
// collection that was never created returns no matches.
func EnsureOnWrite(s Store) Store {
	return &ensuringStore{Store: s}
}

type ensuringStore struct {
	Store

	mu    sync.Mutex
	ready bool
}

// EnsureCollection creates the collection once per wrapper; a failed attempt is retried on
// the next call.
func (e *ensuringStore) EnsureCollection(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}
	if err := e.Store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}
	e.ready = true
	return nil
}

func (e *ensuringStore) Add(ctx context.Context, item Item) error {
	if err := e.EnsureCollection(ctx); err != nil {
		return err
	}
	return e.Store.Add(ctx, item)
}

func (e *ensuringStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := e.EnsureCollection(ctx); err != nil {
		return err
	}
	return e.Store.Delete(ctx, ids)
}

func (e *ensuringStore) Query(ctx context.Context, embedding []float32, topK int) ([]Match, error) {
	matches, err := e.Store.Query(ctx, embedding, topK)
	if errors.Is(err, ErrCollectionNotFound) {
		return nil, nil
	}
	return matches, err
}

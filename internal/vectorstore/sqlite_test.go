package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "vectors.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_lifecycle(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	_, err := s.CollectionID(ctx)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.ErrorIs(t, s.Add(ctx, Item{ID: "x"}), ErrCollectionNotFound)

	require.NoError(t, s.EnsureCollection(ctx))
	first, err := s.CollectionID(ctx)
	require.NoError(t, err)
	require.NoError(t, s.EnsureCollection(ctx))
	second, err := s.CollectionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	items := []Item{
		{ID: "near", Document: "near doc", Embedding: []float32{1, 0.1}, Metadata: Metadata{MetadataSource: "/near.md"}},
		{ID: "far", Document: "far doc", Embedding: []float32{-1, 0}, Metadata: Metadata{MetadataSource: "/far.md"}},
		{ID: "mid", Document: "mid doc", Embedding: []float32{0, 1}},
		{ID: "other-dim", Document: "3d", Embedding: []float32{1, 0, 0}},
	}
	for _, it := range items {
		require.NoError(t, s.Add(ctx, it))
	}
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	matches, err := s.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "near", matches[0].ID)
	assert.Equal(t, "/near.md", matches[0].Source())
	assert.Equal(t, "mid", matches[1].ID)
	assert.InDelta(t, 1.0, matches[1].Distance, 1e-6)
	assert.Nil(t, matches[1].Metadata)

	require.NoError(t, s.Delete(ctx, []string{"near", "mid"}))
	matches, err = s.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "far", matches[0].ID)
	assert.InDelta(t, 2.0, matches[0].Distance, 1e-6)
}

func TestSQLiteStore_collectionsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	ctx := context.Background()
	a, err := NewSQLiteStore(path, "a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewSQLiteStore(path, "b")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.EnsureCollection(ctx))
	require.NoError(t, b.EnsureCollection(ctx))
	require.NoError(t, a.Add(ctx, Item{ID: "1", Document: "in a", Embedding: []float32{1}}))

	got, err := b.Query(ctx, []float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

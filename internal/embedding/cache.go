package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

// DefaultCacheSize is the number of embeddings kept when no size is given.
const DefaultCacheSize = 1024

// EmbeddingCache is an LRU cache for embeddings keyed by the 128-bit xxh3 hash of the text.
// Entries keep their text, so a hash collision is a miss rather than a wrong embedding.
type EmbeddingCache struct {
	cache *lru.Cache[xxh3.Uint128, cacheEntry]
}

type cacheEntry struct {
	text  string
	value []float32
}

// NewEmbeddingCache creates a new cache with the given capacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	c, err := lru.New[xxh3.Uint128, cacheEntry](capacity)
	if err != nil {
		c, _ = lru.New[xxh3.Uint128, cacheEntry](DefaultCacheSize)
	}
	return &EmbeddingCache{cache: c}
}

// Get returns a copy of the cached embedding for text if present.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	e, ok := c.cache.Get(xxh3.HashString128(text))
	if !ok || e.text != text {
		return nil, false
	}
	return append([]float32(nil), e.value...), true
}

// Set stores the embedding for text, evicting the least recently used entry if at capacity.
func (c *EmbeddingCache) Set(text string, value []float32) {
	c.cache.Add(xxh3.HashString128(text), cacheEntry{text: text, value: append([]float32(nil), value...)})
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int { return c.cache.Len() }

// CachedEmbedder serves repeated texts from an EmbeddingCache.
type CachedEmbedder struct {
	inner Embedder
	cache *EmbeddingCache
}

// NewCachedEmbedder wraps inner with a cache of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: NewEmbeddingCache(capacity)}
}

// Embed returns the cached embedding of text or asks the wrapped embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, v)
	return v, nil
}

// EmbedBatch embeds only the texts that are not cached.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	fresh, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range fresh {
		out[missingIdx[j]] = v
		c.cache.Set(missing[j], v)
	}
	return out, nil
}

// Dimensions returns the wrapped embedder's dimensions.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Close closes the wrapped embedder.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }

package state

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/thesandybridge/kb-index/pkg/utils"
)

// DefaultSimilarityThreshold is the cosine similarity a cached query must exceed to be
// reused without a vector search.
const DefaultSimilarityThreshold = 0.93

// QueryCacheEntry is one answered query.
type QueryCacheEntry struct {
	Query       string    `json:"query"`
	ContextHash string    `json:"context_hash"`
	Embedding   []float32 `json:"embedding"`
	Answer      string    `json:"answer"`
}

// QueryCache is an append-only list of answered queries, searched linearly.
type QueryCache struct {
	Entries []QueryCacheEntry `json:"entries"`
}

// GetCachedAnswer returns the answer of the first entry whose query and context hash both
// equal the arguments.
func (c *QueryCache) GetCachedAnswer(query, contextHash string) (string, bool) {
	for _, e := range c.Entries {
		if e.Query == query && e.ContextHash == contextHash {
			return e.Answer, true
		}
	}
	return "", false
}

// FindSimilar returns the answer of the entry most similar to embedding when that
// similarity is strictly greater than threshold. Entries of a different dimensionality are
// ignored. On equal similarity the earliest entry wins.
func (c *QueryCache) FindSimilar(embedding []float32, threshold float64) (string, bool) {
	if len(embedding) == 0 {
		return "", false
	}
	best := -1
	bestSim := 0.0
	for i, e := range c.Entries {
		if len(e.Embedding) != len(embedding) {
			continue
		}
		sim := utils.CosineSimilarity(embedding, e.Embedding)
		if best < 0 || sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best < 0 || bestSim <= threshold {
		return "", false
	}
	return c.Entries[best].Answer, true
}

// InsertAnswer appends an entry. Duplicates are kept.
func (c *QueryCache) InsertAnswer(query, contextHash string, embedding []float32, answer string) {
	c.Entries = append(c.Entries, QueryCacheEntry{
		Query:       query,
		ContextHash: contextHash,
		Embedding:   append([]float32(nil), embedding...),
		Answer:      answer,
	})
}

// Len returns the number of cached answers.
func (c *QueryCache) Len() int { return len(c.Entries) }

// HashQueryContext returns the hex SHA-256 of the query followed by each context chunk in
// order.
func HashQueryContext(query string, chunks []string) string {
	h := sha256.New()
	h.Write([]byte(query))
	for _, c := range chunks {
		h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil))
}

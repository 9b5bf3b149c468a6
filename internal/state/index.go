// Package state holds the persisted state of kb-index: the per-file index records used by
// the diff engine, the query answer cache and the conversation sessions.
package state

import (
	"crypto/sha256"
	"encoding/hex"
)

// ChunkRecord ties a chunk's content hash to the id it was stored under remotely.
type ChunkRecord struct {
	Hash string `json:"hash"`
	ID   string `json:"id"`
}

// FileRecord is what the last successful run knew about one source file.
type FileRecord struct {
	// LastModified is the file mtime in epoch seconds.
	LastModified uint64        `json:"last_modified"`
	Chunks       []ChunkRecord `json:"chunks"`
}

// IndexState maps file paths to their records.
type IndexState struct {
	Files map[string]FileRecord `json:"files"`
}

// NewIndexState returns an empty IndexState.
func NewIndexState() *IndexState {
	return &IndexState{Files: make(map[string]FileRecord)}
}

// Record returns the record stored for path.
func (s *IndexState) Record(path string) (FileRecord, bool) {
	rec, ok := s.Files[path]
	return rec, ok
}

// LastModified returns the recorded mtime for path, or false if path was never indexed.
func (s *IndexState) LastModified(path string) (uint64, bool) {
	rec, ok := s.Files[path]
	return rec.LastModified, ok
}

// Upsert replaces the record for path.
func (s *IndexState) Upsert(path string, rec FileRecord) {
	if s.Files == nil {
		s.Files = make(map[string]FileRecord)
	}
	s.Files[path] = rec
}

// ChunkCount returns the number of chunk records across all files.
func (s *IndexState) ChunkCount() int {
	n := 0
	for _, rec := range s.Files {
		n += len(rec.Chunks)
	}
	return n
}

// HashChunk returns the lowercase hex SHA-256 of content.
func HashChunk(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Chunk is a piece of file content together with its hash.
type Chunk struct {
	Hash    string
	Content string
}

// NewChunk hashes content.
func NewChunk(content string) Chunk {
	return Chunk{Hash: HashChunk(content), Content: content}
}

// Plan is the result of comparing a file's previous chunk records with its current chunks.
type Plan struct {
	// New chunks need to be embedded and stored.
	New []Chunk
	// Unchanged records are carried over verbatim.
	Unchanged []ChunkRecord
	// Stale records must be deleted from the vector store.
	Stale []ChunkRecord
}

// StaleIDs returns the store ids of the stale records.
func (p Plan) StaleIDs() []string {
	ids := make([]string, 0, len(p.Stale))
	for _, r := range p.Stale {
		ids = append(ids, r.ID)
	}
	return ids
}

// Diff classifies current against old by content hash. Current chunks sharing a hash
// collapse to the first occurrence. Old records that repeat a hash already carried over are
// reported stale so their remote entries get removed.
func Diff(old []ChunkRecord, current []Chunk) Plan {
	oldByHash := make(map[string]ChunkRecord, len(old))
	for _, r := range old {
		if _, ok := oldByHash[r.Hash]; !ok {
			oldByHash[r.Hash] = r
		}
	}

	var plan Plan
	seen := make(map[string]bool, len(current))
	for _, c := range current {
		if seen[c.Hash] {
			continue
		}
		seen[c.Hash] = true
		if r, ok := oldByHash[c.Hash]; ok {
			plan.Unchanged = append(plan.Unchanged, r)
		} else {
			plan.New = append(plan.New, c)
		}
	}

	for _, r := range old {
		if !seen[r.Hash] || oldByHash[r.Hash].ID != r.ID {
			plan.Stale = append(plan.Stale, r)
		}
	}
	return plan
}

package indexer

import (
	"strings"

	"github.com/thesandybridge/kb-index/internal/state"
)

const (
	// LinesPerChunk is the size of each chunk window in lines.
	LinesPerChunk = 10
	// MaxChunkBytes is the size above which a chunk is dropped instead of embedded.
	MaxChunkBytes = 100_000
)

// ChunkText splits text into consecutive windows of LinesPerChunk lines joined with "\n".
// Windows that are blank after trimming are dropped. A trailing newline does not start a
// new line.
func ChunkText(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	chunks := make([]string, 0, len(lines)/LinesPerChunk+1)
	for start := 0; start < len(lines); start += LinesPerChunk {
		end := min(start+LinesPerChunk, len(lines))
		chunk := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// PrepareChunks chunks text, drops chunks larger than MaxChunkBytes and hashes the rest.
func PrepareChunks(text string) []state.Chunk {
	raw := ChunkText(text)
	out := make([]state.Chunk, 0, len(raw))
	for _, c := range raw {
		if len(c) > MaxChunkBytes {
			continue
		}
		out = append(out, state.NewChunk(c))
	}
	return out
}

package indexer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(lines, "\n")
}

func TestChunkText_windows(t *testing.T) {
	chunks := ChunkText(numberedLines(25))
	require.Len(t, chunks, 3)
	assert.Len(t, strings.Split(chunks[0], "\n"), 10)
	assert.Len(t, strings.Split(chunks[1], "\n"), 10)
	assert.Len(t, strings.Split(chunks[2], "\n"), 5)
	assert.True(t, strings.HasPrefix(chunks[1], "line 11\n"))
	assert.True(t, strings.HasSuffix(chunks[2], "line 25"))
}

func TestChunkText_deterministic(t *testing.T) {
	text := numberedLines(37)
	a, b := PrepareChunks(text), PrepareChunks(text)
	assert.Equal(t, a, b)
}

func TestChunkText_edges(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"single line", "hello", []string{"hello"}},
		{"trailing newline", "a\nb\n", []string{"a\nb"}},
		{"crlf", "a\r\nb", []string{"a\nb"}},
		{"blank window dropped", numberedLines(10) + "\n" + strings.Repeat("   \n", 10) + "tail", []string{numberedLines(10), "tail"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkText(tt.text)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrepareChunks_dropsOversized(t *testing.T) {
	huge := strings.Repeat("x", MaxChunkBytes+1)
	chunks := PrepareChunks(huge + "\n" + numberedLines(9) + "\nnext window")
	require.Len(t, chunks, 1)
	assert.Equal(t, "next window", chunks[0].Content)
	assert.Len(t, chunks[0].Hash, 64)
}

package query

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesandybridge/kb-index/internal/embedding"
	"github.com/thesandybridge/kb-index/internal/llm"
	"github.com/thesandybridge/kb-index/internal/state"
	"github.com/thesandybridge/kb-index/internal/vectorstore"
)

type fakeSearcher struct {
	matches []vectorstore.Match
	err     error
	calls   int
	topK    int
}

func (f *fakeSearcher) Query(ctx context.Context, emb []float32, topK int) ([]vectorstore.Match, error) {
	f.calls++
	f.topK = topK
	return f.matches, f.err
}

type fakeCompleter struct {
	calls    int
	messages [][]llm.Message
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	f.calls++
	f.messages = append(f.messages, msgs)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("answer %d", f.calls), nil
}

type fixture struct {
	embedder  *embedding.MockEmbedder
	searcher  *fakeSearcher
	completer *fakeCompleter
	snaps     *state.Store
	engine    *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		embedder: embedding.NewMockEmbedder(16),
		searcher: &fakeSearcher{matches: []vectorstore.Match{
			{Document: "fn main() {}", Metadata: vectorstore.Metadata{vectorstore.MetadataSource: "/src/main.rs"}, Distance: 0.12},
			{Document: "# Notes", Distance: 0.3},
		}},
		completer: &fakeCompleter{},
		snaps:     state.NewStore(t.TempDir()),
	}
	f.engine = NewEngine(f.embedder, f.searcher, f.completer, f.snaps, opts...)
	return f
}

func TestRun_rawFormatsReturnResults(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatMarkdown, FormatPretty} {
		t.Run(string(format), func(t *testing.T) {
			f := newFixture(t)
			resp, err := f.engine.Run(context.Background(), Request{Query: "  main?  ", TopK: 3, Format: format})
			require.NoError(t, err)

			assert.Equal(t, "main?", resp.Query)
			assert.Equal(t, 3, f.searcher.topK)
			require.Len(t, resp.Results, 2)
			assert.Equal(t, Result{Index: 1, Source: "/src/main.rs", Distance: 0.12, Content: "fn main() {}"}, resp.Results[0])
			assert.Equal(t, "unknown", resp.Results[1].Source)
			assert.Empty(t, resp.Answer)
			assert.Zero(t, f.completer.calls)
			assert.True(t, resp.SessionCreated, "default session created")

			sessions, err := f.snaps.LoadSessions()
			require.NoError(t, err)
			assert.Equal(t, resp.SessionID, sessions.ActiveID())
		})
	}
}

func TestRun_smartAsksModelAndCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.engine.Run(ctx, Request{Query: "what is main?", Format: FormatSmart})
	require.NoError(t, err)
	assert.Equal(t, "answer 1", resp.Answer)
	assert.Equal(t, CacheMiss, resp.Cache)
	assert.Equal(t, DefaultTopK, f.searcher.topK)
	assert.Equal(t, 1, resp.Turns)

	prompt := f.completer.messages[0][len(f.completer.messages[0])-1].Content
	assert.Contains(t, prompt, "**File:** `/src/main.rs`\n\n```rs\nfn main() {}\n```")
	assert.Contains(t, prompt, "**File:** `unknown`\n\n```text\n# Notes\n```")

	cache, err := f.snaps.LoadQueryCache()
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())
	assert.Equal(t, state.HashQueryContext("what is main?", ContextChunks(resp.Results)), cache.Entries[0].ContextHash)

	sessions, err := f.snaps.LoadSessions()
	require.NoError(t, err)
	s, ok := sessions.ActiveSession()
	require.True(t, ok)
	assert.Equal(t, []string{"what is main?"}, s.Queries)
	assert.Equal(t, []string{"answer 1"}, s.Responses)
}

func TestRun_similarQuestionSkipsSearchAndModel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.embedder.Set("original question", []float32{1, 0})
	f.embedder.Set("reworded question", []float32{0.95, 0.3122499})
	f.embedder.Set("different question", []float32{0.9, 0.4358899})

	_, err := f.engine.Run(ctx, Request{Query: "original question", Format: FormatSmart})
	require.NoError(t, err)
	require.Equal(t, 1, f.searcher.calls)

	resp, err := f.engine.Run(ctx, Request{Query: "reworded question", Format: FormatSmart})
	require.NoError(t, err)
	assert.Equal(t, CacheSimilar, resp.Cache)
	assert.Equal(t, "answer 1", resp.Answer)
	assert.Equal(t, 1, f.searcher.calls, "no vector search on a similarity hit")
	assert.Equal(t, 1, f.completer.calls, "no model call on a similarity hit")
	assert.Equal(t, 2, resp.Turns, "cached answer still recorded in the session")

	resp, err = f.engine.Run(ctx, Request{Query: "different question", Format: FormatSmart})
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, resp.Cache)
	assert.Equal(t, 2, f.completer.calls)
}

func TestRun_similarHitAppliesToEveryFormat(t *testing.T) {
	for _, format := range []Format{FormatPretty, FormatJSON, FormatMarkdown} {
		t.Run(string(format), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.embedder.Set("q", []float32{1, 0})
			_, err := f.engine.Run(ctx, Request{Query: "q", Format: FormatSmart})
			require.NoError(t, err)
			require.Equal(t, 1, f.searcher.calls)

			resp, err := f.engine.Run(ctx, Request{Query: "q", Format: format})
			require.NoError(t, err)
			assert.Equal(t, 1, f.searcher.calls, "no vector search on a similarity hit")
			assert.Equal(t, 1, f.completer.calls)
			assert.Equal(t, CacheSimilar, resp.Cache)
			assert.Equal(t, "answer 1", resp.Answer)
			assert.Empty(t, resp.Results)
			assert.Equal(t, 2, resp.Turns)
		})
	}
}

func TestRun_exactContextHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := "exact?"
	chunks := ContextChunks(toResults(f.searcher.matches))
	cache := &state.QueryCache{}
	// Orthogonal embedding so only the exact-match path can hit.
	cache.InsertAnswer(q, state.HashQueryContext(q, chunks), []float32{0, 1}, "from cache")
	require.NoError(t, f.snaps.SaveQueryCache(cache))
	f.embedder.Set(q, []float32{1, 0})

	resp, err := f.engine.Run(ctx, Request{Query: q, Format: FormatSmart})
	require.NoError(t, err)
	assert.Equal(t, CacheExact, resp.Cache)
	assert.Equal(t, "from cache", resp.Answer)
	assert.Zero(t, f.completer.calls)
}

func TestRun_historyWindowInPrompt(t *testing.T) {
	f := newFixture(t, WithSimilarityThreshold(1.1))
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		_, err := f.engine.Run(ctx, Request{Query: fmt.Sprintf("question %d", i), Format: FormatSmart})
		require.NoError(t, err)
	}
	_, err := f.engine.Run(ctx, Request{Query: "question 8", Format: FormatSmart})
	require.NoError(t, err)

	last := f.completer.messages[len(f.completer.messages)-1]
	assert.Equal(t, llm.OmittedNote(3), last[1].Content)
	assert.Equal(t, "question 3", last[2].Content)
	assert.Len(t, last, 1+1+10+1)

	f = newFixture(t, WithSimilarityThreshold(1.1), WithHistoryWindow(2))
	for i := 0; i < 3; i++ {
		_, err := f.engine.Run(ctx, Request{Query: fmt.Sprintf("q%d", i), Format: FormatSmart})
		require.NoError(t, err)
	}
	last = f.completer.messages[2]
	assert.Len(t, last, 1+4+1, "two turns fit the window, nothing omitted")
}

func TestRun_sessionSelection(t *testing.T) {
	f := newFixture(t, WithSimilarityThreshold(1.1))
	ctx := context.Background()

	first, err := f.engine.Run(ctx, Request{Query: "a", Format: FormatSmart})
	require.NoError(t, err)
	assert.True(t, first.SessionCreated)

	same, err := f.engine.Run(ctx, Request{Query: "b", Format: FormatSmart})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, same.SessionID)
	assert.False(t, same.SessionCreated)

	fresh, err := f.engine.Run(ctx, Request{Query: "c", Format: FormatSmart, Session: "new"})
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, fresh.SessionID)
	assert.Equal(t, 1, fresh.Turns)

	back, err := f.engine.Run(ctx, Request{Query: "d", Format: FormatSmart, Session: first.SessionID})
	require.NoError(t, err)
	assert.Equal(t, 3, back.Turns)

	_, err = f.engine.Run(ctx, Request{Query: "e", Session: "does-not-exist"})
	assert.ErrorIs(t, err, state.ErrSessionNotFound)
}

func TestRun_errors(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	_, err := f.engine.Run(ctx, Request{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = f.engine.Run(ctx, Request{Query: "x", Format: "yaml"})
	assert.ErrorIs(t, err, ErrUnknownFormat)

	boom := errors.New("search down")
	f.searcher.err = boom
	_, err = f.engine.Run(ctx, Request{Query: "x"})
	assert.ErrorIs(t, err, boom)

	f = newFixture(t)
	f.completer.err = errors.New("model down")
	_, err = f.engine.Run(ctx, Request{Query: "x", Format: FormatSmart})
	require.Error(t, err)
	cache, loadErr := f.snaps.LoadQueryCache()
	require.NoError(t, loadErr)
	assert.Zero(t, cache.Len(), "failed answers are not cached")

	f = newFixture(t)
	f.embedder.Fail("x", errors.New("embed down"))
	_, err = f.engine.Run(ctx, Request{Query: "x"})
	assert.ErrorContains(t, err, "embed query")

	noModel := NewEngine(f.embedder, f.searcher, nil, f.snaps)
	_, err = noModel.Run(ctx, Request{Query: "y", Format: FormatSmart})
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	got, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatPretty, got)

	got, err = ParseFormat("SMART")
	require.NoError(t, err)
	assert.Equal(t, FormatSmart, got)

	_, err = ParseFormat("yaml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

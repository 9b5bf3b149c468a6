// Package query answers natural-language questions against the indexed collection. It
// embeds the question, reuses cached answers for near-identical questions, runs the vector
// search and, in smart mode, asks the chat model with the session's recent history.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/internal/llm"
	"github.com/thesandybridge/kb-index/internal/state"
	"github.com/thesandybridge/kb-index/internal/vectorstore"
	"github.com/thesandybridge/kb-index/pkg/utils"
)

// DefaultTopK is the number of results requested when none is given.
const DefaultTopK = 5

// ErrEmptyQuery is returned for a blank question.
var ErrEmptyQuery = errors.New("query must not be empty")

// Embedder produces the embedding of a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the part of vectorstore.Store used for retrieval.
type Searcher interface {
	Query(ctx context.Context, embedding []float32, topK int) ([]vectorstore.Match, error)
}

// Request is one question.
type Request struct {
	Query string
	TopK  int
	// Format selects raw results or a synthesized answer. Empty means FormatPretty.
	Format Format
	// Session is "new", a session id, or empty for the active session.
	Session string
}

// Result is one retrieved chunk.
type Result struct {
	Index    int     `json:"index"`
	Source   string  `json:"source"`
	Distance float64 `json:"distance"`
	Content  string  `json:"content"`
}

// CacheHit tells where an answer came from.
type CacheHit string

const (
	CacheMiss    CacheHit = ""
	CacheSimilar CacheHit = "similar"
	CacheExact   CacheHit = "exact"
)

// Response is the outcome of Run.
type Response struct {
	Query          string   `json:"query"`
	Format         Format   `json:"format"`
	SessionID      string   `json:"session_id"`
	SessionCreated bool     `json:"session_created"`
	Turns          int      `json:"turns"`
	Results        []Result `json:"results,omitempty"`
	Answer         string   `json:"answer,omitempty"`
	Cache          CacheHit `json:"cache,omitempty"`
}

// Engine runs queries. It is not safe for concurrent use; callers serialize Run.
type Engine struct {
	embedder  Embedder
	searcher  Searcher
	completer llm.Completer
	snapshots *state.Store
	threshold float64
	window    int
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for query events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSimilarityThreshold overrides state.DefaultSimilarityThreshold.
func WithSimilarityThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

// WithHistoryWindow overrides state.DefaultHistoryWindow.
func WithHistoryWindow(n int) Option {
	return func(e *Engine) { e.window = n }
}

// NewEngine returns an Engine. completer may be nil when only raw formats are used.
func NewEngine(embedder Embedder, searcher Searcher, completer llm.Completer, snapshots *state.Store, opts ...Option) *Engine {
	e := &Engine{
		embedder:  embedder,
		searcher:  searcher,
		completer: completer,
		snapshots: snapshots,
		threshold: state.DefaultSimilarityThreshold,
		window:    state.DefaultHistoryWindow,
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// Run answers req. A cached answer to a similar question is returned in every format
// without searching. Session selection is persisted even for raw formats; answers are added
// to the active session and, when freshly generated, to the query cache.
func (e *Engine) Run(ctx context.Context, req Request) (*Response, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	format := req.Format
	if format == "" {
		format = FormatPretty
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	e.logger.Debug("running query",
		zap.String("query", utils.Truncate(q, 80)),
		zap.String("format", string(format)),
		zap.Int("top_k", topK))
	if format == FormatSmart && e.completer == nil {
		return nil, errors.New("smart format needs a chat model")
	}

	cache, err := e.snapshots.LoadQueryCache()
	if err != nil {
		return nil, err
	}
	sessions, err := e.snapshots.LoadSessions()
	if err != nil {
		return nil, err
	}

	before := sessions.ActiveID()
	countBefore := len(sessions.Sessions)
	sessionID, err := sessions.Select(req.Session)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Query:          q,
		Format:         format,
		SessionID:      sessionID,
		SessionCreated: len(sessions.Sessions) > countBefore,
	}
	selectionChanged := resp.SessionCreated || sessionID != before

	emb, err := e.embedder.Embed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if answer, ok := cache.FindSimilar(emb, e.threshold); ok {
		e.logger.Debug("similar question answered from cache", zap.String("session", sessionID))
		resp.Answer, resp.Cache = answer, CacheSimilar
		return resp, e.record(sessions, resp)
	}

	matches, err := e.searcher.Query(ctx, emb, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	resp.Results = toResults(matches)

	if format != FormatSmart {
		if s, ok := sessions.ActiveSession(); ok {
			resp.Turns = s.Len()
		}
		if selectionChanged {
			if err := e.snapshots.SaveSessions(sessions); err != nil {
				return nil, err
			}
		}
		return resp, nil
	}

	chunks := ContextChunks(resp.Results)
	contextHash := state.HashQueryContext(q, chunks)
	if answer, ok := cache.GetCachedAnswer(q, contextHash); ok {
		resp.Answer, resp.Cache = answer, CacheExact
		return resp, e.record(sessions, resp)
	}

	active, _ := sessions.ActiveSession()
	msgs := llm.BuildMessages(active, e.window, q, chunks)
	answer, err := e.completer.Complete(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	resp.Answer = answer

	cache.InsertAnswer(q, contextHash, emb, answer)
	if err := e.snapshots.SaveQueryCache(cache); err != nil {
		return nil, err
	}
	return resp, e.record(sessions, resp)
}

// record appends the answered turn to the active session and saves the sessions.
func (e *Engine) record(sessions *state.SessionManager, resp *Response) error {
	if err := sessions.AddInteraction(resp.Query, resp.Answer); err != nil {
		return err
	}
	if s, ok := sessions.ActiveSession(); ok {
		resp.Turns = s.Len()
	}
	return e.snapshots.SaveSessions(sessions)
}

func toResults(matches []vectorstore.Match) []Result {
	out := make([]Result, len(matches))
	for i, m := range matches {
		out[i] = Result{
			Index:    i + 1,
			Source:   m.Source(),
			Distance: m.Distance,
			Content:  m.Document,
		}
	}
	return out
}

// ContextChunks renders results as the Markdown snippets sent to the chat model.
func ContextChunks(results []Result) []string {
	chunks := make([]string, len(results))
	for i, r := range results {
		chunks[i] = fmt.Sprintf("**File:** `%s`\n\n```%s\n%s\n```", r.Source, utils.FileLanguage(r.Source), r.Content)
	}
	return chunks
}

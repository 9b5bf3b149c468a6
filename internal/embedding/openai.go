package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/internal/remote"
	"github.com/thesandybridge/kb-index/pkg/utils"
)

const serviceName = "embeddings"

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-3-large"

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     *int      `json:"index,omitempty"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAIEmbedder calls POST {baseURL}/embeddings.
type OpenAIEmbedder struct {
	client  *remote.Client
	baseURL string
	model   string
	dims    atomic.Int64
	logger  *zap.Logger
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithLogger sets a logger for request events.
func WithLogger(l *zap.Logger) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.logger = l }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.client.HTTPClient = c }
}

// NewOpenAIEmbedder returns an embedder for the given provider base URL (e.g.
// https://api.openai.com/v1) and model.
func NewOpenAIEmbedder(baseURL, apiKey, model string, timeout time.Duration, opts ...OpenAIOption) *OpenAIEmbedder {
	if model == "" {
		model = DefaultModel
	}
	e := &OpenAIEmbedder{
		client:  remote.NewClient(serviceName, timeout).WithBearer(apiKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// Embed returns the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in one request. The result is ordered like texts.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp embeddingResponse
	err := e.client.Do(ctx, http.MethodPost, e.baseURL+"/embeddings",
		embeddingRequest{Input: texts, Model: e.model}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &remote.ParseError{Service: serviceName, Reason: "provider error: " + resp.Error.Message}
	}
	if len(resp.Data) != len(texts) {
		return nil, &remote.ParseError{
			Service: serviceName,
			Reason:  fmt.Sprintf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		pos := i
		if d.Index != nil {
			pos = *d.Index
		}
		if pos < 0 || pos >= len(out) || out[pos] != nil {
			return nil, &remote.ParseError{Service: serviceName, Reason: fmt.Sprintf("bad embedding index %d", pos)}
		}
		if len(d.Embedding) == 0 {
			return nil, remote.Missing(serviceName, fmt.Sprintf("data[%d].embedding", i))
		}
		out[pos] = d.Embedding
	}
	e.dims.Store(int64(len(out[0])))
	e.logger.Debug("embedded texts", zap.Int("count", len(texts)), zap.Int("dimensions", len(out[0])))
	return out, nil
}

// Dimensions returns the size of the last embedding received, or 0 before the first call.
func (e *OpenAIEmbedder) Dimensions() int { return int(e.dims.Load()) }

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.client.HTTPClient.CloseIdleConnections()
	return nil
}

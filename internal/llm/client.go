package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/internal/remote"
	"github.com/thesandybridge/kb-index/pkg/utils"
)

const serviceName = "chat"

// Defaults for the chat endpoint.
const (
	DefaultModel       = "gpt-4"
	DefaultTemperature = 0.4
)

// Completer produces the assistant reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client calls POST {baseURL}/chat/completions.
type Client struct {
	http        *remote.Client
	baseURL     string
	model       string
	temperature float64
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a logger for request events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTemperature overrides DefaultTemperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// NewClient returns a chat client for baseURL (e.g. https://api.openai.com/v1).
func NewClient(baseURL, apiKey, model string, timeout time.Duration, opts ...Option) *Client {
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		http:        remote.NewClient(serviceName, timeout).WithBearer(apiKey),
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: DefaultTemperature,
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c
}

// Complete returns choices[0].message.content. A response without it is a ParseError.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	var resp chatResponse
	req := chatRequest{Model: c.model, Messages: messages, Temperature: c.temperature}
	if err := c.http.Do(ctx, http.MethodPost, c.baseURL+"/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return "", remote.Missing(serviceName, "choices[0].message.content")
	}
	c.logger.Debug("chat completion received",
		zap.String("model", c.model), zap.Int("messages", len(messages)))
	return *resp.Choices[0].Message.Content, nil
}

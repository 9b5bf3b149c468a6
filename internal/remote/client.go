package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody bounds how much of a failed response body is kept in Error.Body.
const maxErrorBody = 4096

// Client sends JSON requests to one remote service.
type Client struct {
	Service    string
	HTTPClient *http.Client
	Header     http.Header
}

// NewClient returns a Client whose transport gives up after timeout.
func NewClient(service string, timeout time.Duration) *Client {
	return &Client{
		Service:    service,
		HTTPClient: &http.Client{Timeout: timeout},
		Header:     http.Header{},
	}
}

// WithBearer sets the Authorization header used on every request.
func (c *Client) WithBearer(token string) *Client {
	if token != "" {
		c.Header.Set("Authorization", "Bearer "+token)
	}
	return c
}

// Do sends method url with in encoded as the JSON body (nil for none) and decodes a
// 2xx response into out (nil to discard). A non-2xx status yields *Error; a body that
// cannot be decoded yields *ParseError. Statuses listed in accept are treated as success
// without decoding.
func (c *Client) Do(ctx context.Context, method, url string, in, out any, accept ...int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", c.Service, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	for _, s := range accept {
		if resp.StatusCode == s {
			return nil
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Service: c.Service, Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ParseError{Service: c.Service, Reason: "decode body", Err: err}
	}
	return nil
}

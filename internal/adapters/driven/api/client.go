// Package api talks to the ListNote storage API over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
)

// Ensure Client implements the storage ports
var (
	_ driven.FileStore     = (*Client)(nil)
	_ driven.TaskStore     = (*Client)(nil)
	_ driven.UserDataStore = (*Client)(nil)
)

// DefaultTimeout bounds a single API request
const DefaultTimeout = 30 * time.Second

// Client is a storage API client authenticated with a bearer token
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("API base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
	}, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// errorResponse is the failure body: {"error": {"message": ..., ...}}
type errorResponse struct {
	Error map[string]any `json:"error"`
}

// apiError builds a domain.APIError from a failed response
func apiError(status int, body []byte) *domain.APIError {
	e := &domain.APIError{Status: status}

	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == nil {
		return e
	}
	if msg, ok := resp.Error["message"].(string); ok {
		e.Message = msg
	}
	for k, v := range resp.Error {
		if k == "message" {
			continue
		}
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		e.Fields[k] = v
	}
	return e
}

// path joins escaped segments onto the base URL
func (c *Client) path(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// do sends a JSON request and decodes a JSON response into out.
// A non-2xx status returns *domain.APIError.
func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, respBody)
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

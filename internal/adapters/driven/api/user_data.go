package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/listnote/listnote-core/internal/core/domain"
)

type userDataBody struct {
	Value json.RawMessage `json:"value"`
}

// GetUserData returns the value under key
func (c *Client) GetUserData(ctx context.Context, key string) (json.RawMessage, error) {
	var resp userDataBody
	if err := c.do(ctx, http.MethodGet, c.path("user_data", key), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Value) == 0 || string(resp.Value) == "null" {
		return nil, domain.ErrNotFound
	}
	return resp.Value, nil
}

// SetUserData stores a value under key
func (c *Client) SetUserData(ctx context.Context, key string, value json.RawMessage) error {
	return c.do(ctx, http.MethodPut, c.path("user_data", key), userDataBody{Value: value}, nil)
}

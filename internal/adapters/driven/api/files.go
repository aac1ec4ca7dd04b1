package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/listnote/listnote-core/internal/core/domain"
)

type fileResponse struct {
	File *domain.File `json:"file"`
}

// contentsBody carries document content in both directions
type contentsBody struct {
	Contents json.RawMessage `json:"contents"`
}

// ListFiles returns every file of a project
func (c *Client) ListFiles(ctx context.Context, projectID string) ([]*domain.File, error) {
	var resp struct {
		Files []*domain.File `json:"files"`
	}
	if err := c.do(ctx, http.MethodGet, c.path("projects", projectID, "files"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// CreateFile creates a document or folder
func (c *Client) CreateFile(ctx context.Context, attrs domain.FileAttrs) (*domain.File, error) {
	var resp fileResponse
	if err := c.do(ctx, http.MethodPost, c.path("files"), attrs, &resp); err != nil {
		return nil, err
	}
	return resp.File, nil
}

// UpdateFile changes the attributes of a file
func (c *Client) UpdateFile(ctx context.Context, id string, attrs domain.FileAttrs) (*domain.File, error) {
	var resp fileResponse
	if err := c.do(ctx, http.MethodPut, c.path("files", id), attrs, &resp); err != nil {
		return nil, err
	}
	return resp.File, nil
}

// ReadFile returns the persisted content of a document
func (c *Client) ReadFile(ctx context.Context, projectID, fileID string) (domain.Content, error) {
	var resp contentsBody
	if err := c.do(ctx, http.MethodGet, c.path("projects", projectID, "files", fileID, "contents"), nil, &resp); err != nil {
		return domain.Content{}, err
	}
	return domain.ParseContent(resp.Contents), nil
}

// WriteFile replaces the persisted content of a document
func (c *Client) WriteFile(ctx context.Context, projectID, fileID string, content domain.Content) error {
	raw, err := content.MarshalJSON()
	if err != nil {
		return err
	}
	body := contentsBody{Contents: raw}
	return c.do(ctx, http.MethodPut, c.path("projects", projectID, "files", fileID, "contents"), body, nil)
}

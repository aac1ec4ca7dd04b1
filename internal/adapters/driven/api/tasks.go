package api

import (
	"context"
	"net/http"

	"github.com/listnote/listnote-core/internal/core/domain"
)

type taskResponse struct {
	Task *domain.Task `json:"task"`
}

// ListTasks returns the tasks of a project in display order
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]*domain.Task, error) {
	var resp struct {
		Tasks []*domain.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, c.path("projects", projectID, "tasks"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// GetTask retrieves a task by ID
func (c *Client) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	var resp taskResponse
	if err := c.do(ctx, http.MethodGet, c.path("tasks", id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

// CreateTask creates a task in a project
func (c *Client) CreateTask(ctx context.Context, projectID string, patch domain.TaskPatch) (*domain.Task, error) {
	var resp taskResponse
	if err := c.do(ctx, http.MethodPost, c.path("projects", projectID, "tasks"), patch, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

// UpdateTask applies a patch and returns the stored record
func (c *Client) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (*domain.Task, error) {
	var resp taskResponse
	if err := c.do(ctx, http.MethodPut, c.path("tasks", id), patch, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

package driven

import (
	"context"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// TaskStore handles task persistence
type TaskStore interface {
	// ListTasks returns the tasks of a project in display order,
	// including soft-deleted ones the backend still reports
	ListTasks(ctx context.Context, projectID string) ([]*domain.Task, error)

	// GetTask retrieves a task by ID
	GetTask(ctx context.Context, id string) (*domain.Task, error)

	// CreateTask creates a task in a project
	CreateTask(ctx context.Context, projectID string, patch domain.TaskPatch) (*domain.Task, error)

	// UpdateTask applies a patch and returns the authoritative record
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (*domain.Task, error)
}

package driving

import (
	"context"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// TaskService manages task records for the UI
type TaskService interface {
	// LoadTasks refetches every task of a project
	LoadTasks(ctx context.Context, projectID string) ([]*domain.Task, error)

	// LoadTask fetches one task unless known; force always refetches
	LoadTask(ctx context.Context, id string, force bool) (*domain.Task, error)

	// Task returns a known task
	Task(id string) (*domain.Task, bool)

	// Tasks returns the ordered display list
	Tasks() []*domain.Task

	// CreateTask creates a task in the current project
	CreateTask(ctx context.Context, patch domain.TaskPatch) (*domain.Task, error)

	// SaveTask applies a patch optimistically and persists it
	SaveTask(ctx context.Context, task *domain.Task, patch domain.TaskPatch) (*domain.Task, error)

	// ToggleComplete checks or unchecks a task
	ToggleComplete(ctx context.Context, task *domain.Task) (*domain.Task, error)

	// ToggleArchived archives or unarchives a task
	ToggleArchived(ctx context.Context, task *domain.Task) (*domain.Task, error)

	// UndeleteTask restores a soft-deleted task
	UndeleteTask(ctx context.Context, task *domain.Task) (*domain.Task, error)

	// DeleteTask soft-deletes a task
	DeleteTask(ctx context.Context, task *domain.Task) (*domain.Task, error)
}

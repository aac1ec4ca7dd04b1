package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TaskStore = (*TaskStore)(nil)

// TaskStore implements driven.TaskStore using PostgreSQL.
// Display order is insertion order.
type TaskStore struct {
	db *DB
}

// NewTaskStore creates a new TaskStore
func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `id, title, doc, completed_at, archived_at, deleted_at, due_at, priority, state`

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var completedAt, archivedAt, deletedAt, dueAt sql.NullTime
	var state sql.NullString

	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Doc,
		&completedAt,
		&archivedAt,
		&deletedAt,
		&dueAt,
		&t.Priority,
		&state,
	)
	if err != nil {
		return nil, err
	}

	t.CompletedAt = TimePtr(completedAt)
	t.ArchivedAt = TimePtr(archivedAt)
	t.DeletedAt = TimePtr(deletedAt)
	t.DueAt = TimePtr(dueAt)
	t.State = StringPtr(state)
	return &t, nil
}

// ListTasks returns every task of a project, soft-deleted ones included
func (s *TaskStore) ListTasks(ctx context.Context, projectID string) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = $1 ORDER BY position`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTask retrieves a task by ID
func (s *TaskStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// CreateTask inserts a task built from the patch
func (s *TaskStore) CreateTask(ctx context.Context, projectID string, patch domain.TaskPatch) (*domain.Task, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: task needs a project", domain.ErrInvalidInput)
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	t := (&domain.Task{ID: uuid.NewString()}).Apply(patch)
	now := time.Now()

	query := `
		INSERT INTO tasks (project_id, ` + taskColumns + `, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		projectID,
		t.ID,
		t.Title,
		t.Doc,
		NullTime(t.CompletedAt),
		NullTime(t.ArchivedAt),
		NullTime(t.DeletedAt),
		NullTime(t.DueAt),
		t.Priority,
		NullString(t.State),
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

// UpdateTask applies a patch under a row lock and returns the stored record
func (s *TaskStore) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (*domain.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *domain.Task
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
		current, err := scanTask(row)
		if err != nil {
			return notFound(err)
		}
		if patch.IsEmpty() {
			updated = current
			return nil
		}

		updated = current.Apply(patch)
		_, err = tx.ExecContext(ctx, `
			UPDATE tasks
			SET title = $2, doc = $3, completed_at = $4, archived_at = $5, deleted_at = $6,
				due_at = $7, priority = $8, state = $9, updated_at = $10
			WHERE id = $1
		`,
			updated.ID,
			updated.Title,
			updated.Doc,
			NullTime(updated.CompletedAt),
			NullTime(updated.ArchivedAt),
			NullTime(updated.DeletedAt),
			NullTime(updated.DueAt),
			updated.Priority,
			NullString(updated.State),
			time.Now(),
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

package driven

import (
	"context"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// FileStore handles the file tree and document content of a project
type FileStore interface {
	// ListFiles returns every file of a project
	ListFiles(ctx context.Context, projectID string) ([]*domain.File, error)

	// CreateFile creates a document or folder
	CreateFile(ctx context.Context, attrs domain.FileAttrs) (*domain.File, error)

	// UpdateFile changes the attributes of a file
	UpdateFile(ctx context.Context, id string, attrs domain.FileAttrs) (*domain.File, error)

	// ReadFile returns the persisted content of a document.
	// A document that was never written returns empty content.
	ReadFile(ctx context.Context, projectID, fileID string) (domain.Content, error)

	// WriteFile replaces the persisted content of a document
	WriteFile(ctx context.Context, projectID, fileID string, content domain.Content) error
}

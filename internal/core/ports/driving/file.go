package driving

import (
	"context"
	"time"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// FileService manages the per-project file tree
type FileService interface {
	// LoadFiles fetches the files of a project
	LoadFiles(ctx context.Context, project *domain.Project) ([]*domain.File, error)

	// Files returns the loaded files of a project
	Files(projectID string) []*domain.File

	// Tree returns the loaded files nested by folder
	Tree(projectID string) []*domain.TreeFile

	// File looks up a loaded file
	File(id string) (*domain.File, bool)

	// NewFile creates a document or folder
	NewFile(ctx context.Context, projectID, name string, typ domain.FileType, parent *string) (*domain.File, error)

	// NewDailyFile returns the journal document of a day, creating it if needed
	NewDailyFile(ctx context.Context, project *domain.Project, date time.Time) (string, error)

	// RenameFile renames a file
	RenameFile(ctx context.Context, projectID, fileID, name string) error

	// MoveFile changes the parent folder of a file
	MoveFile(ctx context.Context, projectID, fileID string, parent *string) error

	// DeleteFile soft-deletes or archives a file
	DeleteFile(ctx context.Context, projectID, fileID string, archive bool) error

	// LoadExpanded reads the folder expansion state
	LoadExpanded(ctx context.Context) (map[string]bool, error)

	// SetExpanded stores a folder's expansion state
	SetExpanded(ctx context.Context, key string, expanded bool) error
}

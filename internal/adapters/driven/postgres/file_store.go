package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.FileStore = (*FileStore)(nil)

// FileStore implements driven.FileStore using PostgreSQL
type FileStore struct {
	db *DB
}

// NewFileStore creates a new FileStore
func NewFileStore(db *DB) *FileStore {
	return &FileStore{db: db}
}

const fileColumns = `id, project_id, name, type, parent_id, archived_at, deleted_at`

func scanFile(row rowScanner) (*domain.File, error) {
	var f domain.File
	var parent sql.NullString
	var archivedAt, deletedAt sql.NullTime

	err := row.Scan(&f.ID, &f.ProjectID, &f.Name, &f.Type, &parent, &archivedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	f.Parent = StringPtr(parent)
	f.ArchivedAt = TimePtr(archivedAt)
	f.DeletedAt = TimePtr(deletedAt)
	return &f, nil
}

// ListFiles returns every file of a project in creation order
func (s *FileStore) ListFiles(ctx context.Context, projectID string) ([]*domain.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = $1 ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []*domain.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// CreateFile inserts a document or folder. Name and project are required.
func (s *FileStore) CreateFile(ctx context.Context, attrs domain.FileAttrs) (*domain.File, error) {
	if attrs.ProjectID == nil || *attrs.ProjectID == "" {
		return nil, fmt.Errorf("%w: file needs a project", domain.ErrInvalidInput)
	}
	if attrs.Name == nil || strings.TrimSpace(*attrs.Name) == "" {
		return nil, fmt.Errorf("%w: file needs a name", domain.ErrInvalidInput)
	}

	f := (&domain.File{
		ID:        uuid.NewString(),
		ProjectID: *attrs.ProjectID,
		Type:      domain.FileTypeDoc,
	}).Apply(attrs)

	query := `
		INSERT INTO files (` + fileColumns + `, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	now := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		f.ID,
		f.ProjectID,
		f.Name,
		string(f.Type),
		NullString(f.Parent),
		NullTime(f.ArchivedAt),
		NullTime(f.DeletedAt),
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return f, nil
}

// UpdateFile merges attrs into the stored file under a row lock
func (s *FileStore) UpdateFile(ctx context.Context, id string, attrs domain.FileAttrs) (*domain.File, error) {
	var updated *domain.File
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1 FOR UPDATE`, id)
		current, err := scanFile(row)
		if err != nil {
			return notFound(err)
		}

		updated = current.Apply(attrs)
		_, err = tx.ExecContext(ctx, `
			UPDATE files
			SET name = $2, type = $3, parent_id = $4, archived_at = $5, deleted_at = $6, updated_at = $7
			WHERE id = $1
		`,
			updated.ID,
			updated.Name,
			string(updated.Type),
			NullString(updated.Parent),
			NullTime(updated.ArchivedAt),
			NullTime(updated.DeletedAt),
			time.Now(),
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ReadFile returns the stored content; a document never written is empty
func (s *FileStore) ReadFile(ctx context.Context, projectID, fileID string) (domain.Content, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM file_contents WHERE project_id = $1 AND file_id = $2`,
		projectID, fileID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.Content{Kind: domain.ContentEmpty}, nil
	}
	if err != nil {
		return domain.Content{}, fmt.Errorf("failed to read file: %w", err)
	}
	return domain.ParseContent(raw), nil
}

// WriteFile replaces the stored content of a document
func (s *FileStore) WriteFile(ctx context.Context, projectID, fileID string, content domain.Content) error {
	raw, err := content.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode content: %w", err)
	}

	query := `
		INSERT INTO file_contents (project_id, file_id, content, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (project_id, file_id) DO UPDATE SET
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at
	`
	// jsonb parameters go over the wire as text
	if _, err := s.db.ExecContext(ctx, query, projectID, fileID, string(raw), time.Now()); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

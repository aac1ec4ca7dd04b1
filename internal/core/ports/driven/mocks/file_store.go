package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// MockFileStore is an in-memory FileStore for testing
type MockFileStore struct {
	mu       sync.Mutex
	files    map[string]*domain.File
	order    []string
	contents map[string]domain.Content // key: projectID/fileID
	nextID   int

	// Custom behavior hooks (optional)
	ReadFileFn  func(projectID, fileID string) (domain.Content, error)
	WriteFileFn func(projectID, fileID string, content domain.Content) error

	Writes []FileWrite
}

// FileWrite records one WriteFile call
type FileWrite struct {
	ProjectID string
	FileID    string
	Content   domain.Content
}

// NewMockFileStore creates a new MockFileStore
func NewMockFileStore() *MockFileStore {
	return &MockFileStore{
		files:    make(map[string]*domain.File),
		contents: make(map[string]domain.Content),
	}
}

func (m *MockFileStore) ListFiles(ctx context.Context, projectID string) ([]*domain.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.File
	for _, id := range m.order {
		if f := m.files[id]; f.ProjectID == projectID {
			c := *f
			result = append(result, &c)
		}
	}
	return result, nil
}

func (m *MockFileStore) CreateFile(ctx context.Context, attrs domain.FileAttrs) (*domain.File, error) {
	if attrs.ProjectID == nil || attrs.Name == nil {
		return nil, domain.ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	f := &domain.File{
		ID:        fmt.Sprintf("file-%d", m.nextID),
		ProjectID: *attrs.ProjectID,
		Name:      *attrs.Name,
		Type:      attrs.Type,
	}
	if f.Type == "" {
		f.Type = domain.FileTypeDoc
	}
	if attrs.Parent.Set {
		f.Parent = attrs.Parent.Value
	}
	m.files[f.ID] = f
	m.order = append(m.order, f.ID)
	c := *f
	return &c, nil
}

func (m *MockFileStore) UpdateFile(ctx context.Context, id string, attrs domain.FileAttrs) (*domain.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	f = f.Apply(attrs)
	m.files[id] = f
	c := *f
	return &c, nil
}

func (m *MockFileStore) ReadFile(ctx context.Context, projectID, fileID string) (domain.Content, error) {
	if m.ReadFileFn != nil {
		return m.ReadFileFn(projectID, fileID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contents[projectID+"/"+fileID], nil
}

func (m *MockFileStore) WriteFile(ctx context.Context, projectID, fileID string, content domain.Content) error {
	m.mu.Lock()
	m.Writes = append(m.Writes, FileWrite{ProjectID: projectID, FileID: fileID, Content: content})
	m.mu.Unlock()

	if m.WriteFileFn != nil {
		return m.WriteFileFn(projectID, fileID, content)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents[projectID+"/"+fileID] = content
	return nil
}

// Helper methods for testing

// PutFile stores a file record directly
func (m *MockFileStore) PutFile(f *domain.File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[f.ID]; !ok {
		m.order = append(m.order, f.ID)
	}
	c := *f
	m.files[f.ID] = &c
}

// PutContent stores document content directly
func (m *MockFileStore) PutContent(projectID, fileID string, content domain.Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents[projectID+"/"+fileID] = content
}

// WriteCount returns how many writes were attempted
func (m *MockFileStore) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Writes)
}

// LastWrite returns the most recent write attempt
func (m *MockFileStore) LastWrite() (FileWrite, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Writes) == 0 {
		return FileWrite{}, false
	}
	return m.Writes[len(m.Writes)-1], true
}

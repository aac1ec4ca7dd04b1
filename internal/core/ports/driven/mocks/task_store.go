package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// MockTaskStore is an in-memory TaskStore for testing.
// Returned tasks are copies so callers never share state with the store.
type MockTaskStore struct {
	mu      sync.Mutex
	tasks   map[string]*domain.Task
	order   map[string][]string // projectID -> task ids
	project map[string]string   // task id -> projectID
	nextID  int

	// Custom behavior hooks (optional)
	ListTasksFn  func(projectID string) ([]*domain.Task, error)
	GetTaskFn    func(id string) (*domain.Task, error)
	CreateTaskFn func(projectID string, patch domain.TaskPatch) (*domain.Task, error)
	UpdateTaskFn func(id string, patch domain.TaskPatch) (*domain.Task, error)

	Updates []domain.TaskPatch
}

// NewMockTaskStore creates a new MockTaskStore
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		tasks:   make(map[string]*domain.Task),
		order:   make(map[string][]string),
		project: make(map[string]string),
	}
}

func (m *MockTaskStore) ListTasks(ctx context.Context, projectID string) ([]*domain.Task, error) {
	if m.ListTasksFn != nil {
		return m.ListTasksFn(projectID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.Task, 0, len(m.order[projectID]))
	for _, id := range m.order[projectID] {
		result = append(result, m.tasks[id].Clone())
	}
	return result, nil
}

func (m *MockTaskStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	if m.GetTaskFn != nil {
		return m.GetTaskFn(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return task.Clone(), nil
}

func (m *MockTaskStore) CreateTask(ctx context.Context, projectID string, patch domain.TaskPatch) (*domain.Task, error) {
	if m.CreateTaskFn != nil {
		return m.CreateTaskFn(projectID, patch)
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	task := (&domain.Task{ID: fmt.Sprintf("task-%d", m.nextID)}).Apply(patch)
	m.put(projectID, task)
	return task.Clone(), nil
}

func (m *MockTaskStore) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (*domain.Task, error) {
	if m.UpdateTaskFn != nil {
		return m.UpdateTaskFn(id, patch)
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates = append(m.Updates, patch)
	task, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	task = task.Apply(patch)
	m.tasks[id] = task
	return task.Clone(), nil
}

func (m *MockTaskStore) put(projectID string, task *domain.Task) {
	if _, ok := m.tasks[task.ID]; !ok {
		m.order[projectID] = append(m.order[projectID], task.ID)
		m.project[task.ID] = projectID
	}
	m.tasks[task.ID] = task
}

// Helper methods for testing

// Put stores a task directly, bypassing validation
func (m *MockTaskStore) Put(projectID string, task *domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(projectID, task.Clone())
}

// Remove drops a task entirely, as a backend purge would
func (m *MockTaskStore) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	projectID := m.project[id]
	delete(m.tasks, id)
	delete(m.project, id)
	ids := m.order[projectID]
	for i, v := range ids {
		if v == id {
			m.order[projectID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

// UpdateCount returns how many updates were received
func (m *MockTaskStore) UpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Updates)
}

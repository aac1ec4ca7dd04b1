package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// MockLocalStore is an in-memory LocalStore for testing
type MockLocalStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMockLocalStore creates a new MockLocalStore
func NewMockLocalStore() *MockLocalStore {
	return &MockLocalStore{values: make(map[string]string)}
}

func (m *MockLocalStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *MockLocalStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MockLocalStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// MockUserDataStore is an in-memory UserDataStore for testing
type MockUserDataStore struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

// NewMockUserDataStore creates a new MockUserDataStore
func NewMockUserDataStore() *MockUserDataStore {
	return &MockUserDataStore{values: make(map[string]json.RawMessage)}
}

func (m *MockUserDataStore) GetUserData(ctx context.Context, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (m *MockUserDataStore) SetUserData(ctx context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append(json.RawMessage(nil), value...)
	return nil
}

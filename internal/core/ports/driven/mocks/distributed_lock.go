package mocks

import (
	"context"
	"sync"
	"time"
)

// MockDistributedLock is an in-memory DistributedLock for testing.
// Locks never expire on their own; tests release them.
type MockDistributedLock struct {
	mu    sync.Mutex
	locks map[string]bool

	// Custom behavior hooks (optional)
	AcquireFn func(name string, ttl time.Duration) (bool, error)

	Acquires []string
	Releases []string
}

// NewMockDistributedLock creates a new MockDistributedLock
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{locks: make(map[string]bool)}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	m.Acquires = append(m.Acquires, name)
	m.mu.Unlock()
	if m.AcquireFn != nil {
		return m.AcquireFn(name, ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[name] {
		return false, nil
	}
	m.locks[name] = true
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Releases = append(m.Releases, name)
	delete(m.locks, name)
	return nil
}

// Hold marks a lock as taken by another client
func (m *MockDistributedLock) Hold(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[name] = true
}

// IsHeld reports whether a lock is currently taken
func (m *MockDistributedLock) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[name]
}

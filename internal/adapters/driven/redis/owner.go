// Package redis carries shared-key topics and collaboration rooms over
// Redis pub/sub, so that sessions on different devices see each other's
// changes.
package redis

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
)

// generateOwnerID creates a unique identifier for one subscriber.
// Format: hostname:pid:random
func generateOwnerID() string {
	hostname, _ := os.Hostname()
	randomBytes := make([]byte, 8)
	_, _ = rand.Read(randomBytes)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(randomBytes))
}

// handlers is an ordered set of callbacks that may be removed individually
type handlers[T any] struct {
	mu     sync.Mutex
	nextID int
	list   []handler[T]
}

type handler[T any] struct {
	id int
	fn T
}

func (h *handlers[T]) add(fn T) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.list = append(h.list, handler[T]{id: id, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, e := range h.list {
			if e.id == id {
				h.list = append(h.list[:i:i], h.list[i+1:]...)
				return
			}
		}
	}
}

func (h *handlers[T]) snapshot() []T {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]T, len(h.list))
	for i, e := range h.list {
		out[i] = e.fn
	}
	return out
}

func (h *handlers[T]) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.list = nil
}

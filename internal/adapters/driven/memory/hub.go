// Package memory provides in-process topics and collaboration rooms.
// Delivery is synchronous on the publishing goroutine, which makes it
// suitable for a single-process client and for tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.TopicFactory    = (*Hub)(nil)
	_ driven.Topic           = (*Topic)(nil)
	_ driven.CollabTransport = (*Hub)(nil)
	_ driven.CollabSession   = (*Room)(nil)
)

// Hub routes topic keys and room updates between its subscribers
type Hub struct {
	mu     sync.Mutex
	topics map[string][]*Topic
	rooms  map[string][]*Room
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		topics: make(map[string][]*Topic),
		rooms:  make(map[string][]*Room),
	}
}

// Topic opens a new subscription on the named topic
func (h *Hub) Topic(ctx context.Context, name string) (driven.Topic, error) {
	t := &Topic{hub: h, name: name}
	h.mu.Lock()
	h.topics[name] = append(h.topics[name], t)
	h.mu.Unlock()
	return t, nil
}

// Join enters a collaboration room
func (h *Hub) Join(ctx context.Context, room string, self domain.Peer) (driven.CollabSession, error) {
	if self.ID == "" {
		self.ID = uuid.NewString()
	}
	r := &Room{hub: h, name: room, self: self}
	h.mu.Lock()
	h.rooms[room] = append(h.rooms[room], r)
	h.mu.Unlock()
	return r, nil
}

func (h *Hub) topicPeers(name string, except *Topic) []*Topic {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*Topic
	for _, t := range h.topics[name] {
		if t != except {
			out = append(out, t)
		}
	}
	return out
}

func (h *Hub) roomPeers(name string) []*Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Room(nil), h.rooms[name]...)
}

func (h *Hub) leaveTopic(t *Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.topics[t.name] = remove(h.topics[t.name], t)
	if len(h.topics[t.name]) == 0 {
		delete(h.topics, t.name)
	}
}

func (h *Hub) leaveRoom(r *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms[r.name] = remove(h.rooms[r.name], r)
	if len(h.rooms[r.name]) == 0 {
		delete(h.rooms, r.name)
	}
}

func remove[T comparable](list []T, v T) []T {
	for i, x := range list {
		if x == v {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// handlers is a removable list of callbacks
type handlers[T any] struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]T
	order  []int
}

func (h *handlers[T]) add(fn T) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fns == nil {
		h.fns = make(map[int]T)
	}
	h.nextID++
	id := h.nextID
	h.fns[id] = fn
	h.order = append(h.order, id)
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.fns, id)
		h.order = remove(h.order, id)
	}
}

func (h *handlers[T]) snapshot() []T {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]T, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.fns[id])
	}
	return out
}

func (h *handlers[T]) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = nil
	h.order = nil
}

// Topic is one subscription to a hub topic
type Topic struct {
	hub  *Hub
	name string

	handlers handlers[func(key, value string)]

	mu     sync.Mutex
	closed bool
}

// Name returns the topic name
func (t *Topic) Name() string {
	return t.name
}

// SetSharedKey delivers the change to every other subscription of the topic
func (t *Topic) SetSharedKey(ctx context.Context, key, value string) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return domain.ErrSessionClosed
	}

	for _, peer := range t.hub.topicPeers(t.name, t) {
		for _, fn := range peer.handlers.snapshot() {
			fn(key, value)
		}
	}
	return nil
}

// OnAllKeyChange registers a handler for changes from other subscriptions
func (t *Topic) OnAllKeyChange(fn func(key, value string)) func() {
	return t.handlers.add(fn)
}

// Close leaves the topic
func (t *Topic) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.handlers.clear()
	t.hub.leaveTopic(t)
	return nil
}

// Room is one peer's membership of a collaboration room
type Room struct {
	hub  *Hub
	name string
	self domain.Peer

	handlers handlers[func(update []byte)]

	mu     sync.Mutex
	closed bool
}

// Room returns the room name
func (r *Room) Room() string {
	return r.name
}

// Broadcast delivers an update to every other peer in the room
func (r *Room) Broadcast(ctx context.Context, update []byte) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return domain.ErrSessionClosed
	}

	for _, peer := range r.hub.roomPeers(r.name) {
		if peer == r {
			continue
		}
		for _, fn := range peer.handlers.snapshot() {
			fn(append([]byte(nil), update...))
		}
	}
	return nil
}

// OnUpdate registers a handler for updates from other peers
func (r *Room) OnUpdate(fn func(update []byte)) func() {
	return r.handlers.add(fn)
}

// Peers lists everyone in the room
func (r *Room) Peers() []domain.Peer {
	rooms := r.hub.roomPeers(r.name)
	peers := make([]domain.Peer, 0, len(rooms))
	for _, p := range rooms {
		peers = append(peers, p.self)
	}
	return peers
}

// Close leaves the room
func (r *Room) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.handlers.clear()
	r.hub.leaveRoom(r)
	return nil
}

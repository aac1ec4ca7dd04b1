package driven

import (
	"context"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// CollabSession relays replica updates between peers editing one document
type CollabSession interface {
	// Room returns the room the session joined
	Room() string

	// Broadcast sends an encoded update to the other peers
	Broadcast(ctx context.Context, update []byte) error

	// OnUpdate registers a handler for updates from other peers.
	// The returned func removes the handler.
	OnUpdate(fn func(update []byte)) func()

	// Peers returns the peers currently present, including this one
	Peers() []domain.Peer

	// Close leaves the room
	Close() error
}

// CollabTransport joins collaboration rooms
type CollabTransport interface {
	Join(ctx context.Context, room string, self domain.Peer) (CollabSession, error)
}

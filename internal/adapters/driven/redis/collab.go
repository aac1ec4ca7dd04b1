package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.CollabTransport = (*Collab)(nil)
	_ driven.CollabSession   = (*Room)(nil)
)

const (
	roomChannelPrefix = "listnote:room:"
	presencePrefix    = "listnote:presence:"

	// presenceTimeout bounds presence reads and cleanup, which have no caller context
	presenceTimeout = 2 * time.Second
)

// roomUpdate is the pub/sub payload of one replica update
type roomUpdate struct {
	Origin string `json:"origin"`
	Update []byte `json:"update"`
}

// Collab joins collaboration rooms on Redis.
// Updates travel over pub/sub; presence is a hash per room keyed by member.
type Collab struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCollab creates a Redis-backed collaboration transport
func NewCollab(client *redis.Client, logger *slog.Logger) *Collab {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collab{client: client, logger: logger}
}

// Join subscribes to the room and announces self
func (c *Collab) Join(ctx context.Context, room string, self domain.Peer) (driven.CollabSession, error) {
	if self.ID == "" {
		self.ID = uuid.NewString()
	}
	peer, err := json.Marshal(self)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal peer: %w", err)
	}

	ps := c.client.Subscribe(ctx, roomChannelPrefix+room)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("join room %s: %w", room, err)
	}

	r := &Room{
		client: c.client,
		name:   room,
		member: generateOwnerID(),
		pubsub: ps,
		logger: c.logger.With("room", room),
		done:   make(chan struct{}),
	}
	if err := c.client.HSet(ctx, presencePrefix+room, r.member, peer).Err(); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("announce presence in %s: %w", room, err)
	}
	go r.run(ps.Channel())
	return r, nil
}

// Room is one member's connection to a collaboration room
type Room struct {
	client *redis.Client
	name   string
	member string
	pubsub *redis.PubSub
	logger *slog.Logger

	handlers handlers[func(update []byte)]

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (r *Room) run(ch <-chan *redis.Message) {
	defer close(r.done)
	for msg := range ch {
		var u roomUpdate
		if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
			r.logger.Warn("dropping malformed room update", "error", err)
			continue
		}
		if u.Origin == r.member {
			continue
		}
		for _, fn := range r.handlers.snapshot() {
			fn(u.Update)
		}
	}
}

// Room returns the room name
func (r *Room) Room() string {
	return r.name
}

// Broadcast publishes an update to the other members
func (r *Room) Broadcast(ctx context.Context, update []byte) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return domain.ErrSessionClosed
	}

	payload, err := json.Marshal(roomUpdate{Origin: r.member, Update: update})
	if err != nil {
		return fmt.Errorf("failed to marshal room update: %w", err)
	}
	if err := r.client.Publish(ctx, roomChannelPrefix+r.name, payload).Err(); err != nil {
		return fmt.Errorf("failed to broadcast to %s: %w", r.name, err)
	}
	return nil
}

// OnUpdate registers a handler for updates from other members
func (r *Room) OnUpdate(fn func(update []byte)) func() {
	return r.handlers.add(fn)
}

// Peers lists the members present in the room, ordered by id
func (r *Room) Peers() []domain.Peer {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	members, err := r.client.HGetAll(ctx, presencePrefix+r.name).Result()
	if err != nil {
		r.logger.Warn("failed to read presence", "error", err)
		return nil
	}
	peers := make([]domain.Peer, 0, len(members))
	for member, raw := range members {
		var p domain.Peer
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			r.logger.Warn("dropping malformed presence entry", "member", member, "error", err)
			continue
		}
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}

// Close leaves the room and withdraws presence
func (r *Room) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.handlers.clear()

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	presenceErr := r.client.HDel(ctx, presencePrefix+r.name, r.member).Err()

	err := r.pubsub.Close()
	<-r.done
	if presenceErr != nil {
		return fmt.Errorf("failed to withdraw presence from %s: %w", r.name, presenceErr)
	}
	if err != nil {
		return fmt.Errorf("failed to leave room %s: %w", r.name, err)
	}
	return nil
}

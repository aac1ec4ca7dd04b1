package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.TopicFactory = (*Topics)(nil)
	_ driven.Topic        = (*Topic)(nil)
)

const (
	// Channel and hash prefixes for Redis
	topicChannelPrefix = "listnote:topic:"
	topicStatePrefix   = "listnote:topic-state:"
)

// keyChange is the pub/sub payload of one shared key write
type keyChange struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// Topics opens shared-key topics on Redis.
// Every write is stored in a hash and published on the topic channel.
type Topics struct {
	client *redis.Client
	logger *slog.Logger
}

// NewTopics creates a Redis-backed topic factory
func NewTopics(client *redis.Client, logger *slog.Logger) *Topics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Topics{client: client, logger: logger}
}

// Topic subscribes to a topic. It returns once the subscription is active,
// so no change published afterwards is missed.
func (f *Topics) Topic(ctx context.Context, name string) (driven.Topic, error) {
	ps := f.client.Subscribe(ctx, topicChannelPrefix+name)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe topic %s: %w", name, err)
	}

	t := &Topic{
		client: f.client,
		name:   name,
		origin: generateOwnerID(),
		pubsub: ps,
		logger: f.logger.With("topic", name),
		done:   make(chan struct{}),
	}
	go t.run(ps.Channel())
	return t, nil
}

// Topic is one subscription to a shared-key topic.
// Handlers run on the subscription goroutine.
type Topic struct {
	client *redis.Client
	name   string
	origin string
	pubsub *redis.PubSub
	logger *slog.Logger

	handlers handlers[func(key, value string)]

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (t *Topic) run(ch <-chan *redis.Message) {
	defer close(t.done)
	for msg := range ch {
		var change keyChange
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			t.logger.Warn("dropping malformed key change", "error", err)
			continue
		}
		// own writes are not echoed back
		if change.Origin == t.origin {
			continue
		}
		for _, fn := range t.handlers.snapshot() {
			fn(change.Key, change.Value)
		}
	}
}

// Name returns the topic name
func (t *Topic) Name() string {
	return t.name
}

// SetSharedKey stores the value and tells every other subscriber
func (t *Topic) SetSharedKey(ctx context.Context, key, value string) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return domain.ErrSessionClosed
	}

	payload, err := json.Marshal(keyChange{Origin: t.origin, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("failed to marshal key change: %w", err)
	}

	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, topicStatePrefix+t.name, key, value)
		pipe.Publish(ctx, topicChannelPrefix+t.name, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set shared key %s: %w", key, err)
	}
	return nil
}

// SharedKeys returns the latest value of every key written to the topic
func (t *Topic) SharedKeys(ctx context.Context) (map[string]string, error) {
	values, err := t.client.HGetAll(ctx, topicStatePrefix+t.name).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read shared keys: %w", err)
	}
	return values, nil
}

// OnAllKeyChange registers a handler for keys written by other subscribers
func (t *Topic) OnAllKeyChange(fn func(key, value string)) func() {
	return t.handlers.add(fn)
}

// Close unsubscribes and waits for the subscription goroutine to finish
func (t *Topic) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.handlers.clear()
	err := t.pubsub.Close()
	<-t.done
	if err != nil {
		return fmt.Errorf("failed to close topic %s: %w", t.name, err)
	}
	return nil
}

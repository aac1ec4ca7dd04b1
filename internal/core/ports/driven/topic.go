package driven

import "context"

// Topic is a shared key/value channel between all clients of a project.
// Values are ephemeral; subscribers only care that a key changed.
type Topic interface {
	// Name returns the topic name
	Name() string

	// SetSharedKey publishes a key change to every subscriber
	SetSharedKey(ctx context.Context, key, value string) error

	// OnAllKeyChange registers a handler for key changes published by
	// other clients. The returned func removes the handler.
	OnAllKeyChange(fn func(key, value string)) func()

	// Close stops delivery and releases the subscription
	Close() error
}

// TopicFactory opens topics by name
type TopicFactory interface {
	Topic(ctx context.Context, name string) (Topic, error)
}

package driven

import "context"

// LocalStore keeps device-local string markers
type LocalStore interface {
	// Get returns the value under key, or domain.ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value under key
	Set(ctx context.Context, key, value string) error

	// Delete removes a key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

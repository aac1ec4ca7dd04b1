package driven

import (
	"context"
	"encoding/json"
)

// UserDataStore keeps small per-user JSON values on the server
type UserDataStore interface {
	// GetUserData returns the value under key, or domain.ErrNotFound
	GetUserData(ctx context.Context, key string) (json.RawMessage, error)

	// SetUserData stores a value under key
	SetUserData(ctx context.Context, key string, value json.RawMessage) error
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.UserDataStore = (*UserDataStore)(nil)

// UserDataStore implements driven.UserDataStore for one user
type UserDataStore struct {
	db     *DB
	userID string
}

// NewUserDataStore creates a store scoped to userID
func NewUserDataStore(db *DB, userID string) *UserDataStore {
	return &UserDataStore{db: db, userID: userID}
}

// GetUserData returns the value under key
func (s *UserDataStore) GetUserData(ctx context.Context, key string) (json.RawMessage, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM user_data WHERE user_id = $1 AND key = $2`,
		s.userID, key,
	).Scan(&raw)
	if err != nil {
		return nil, notFound(err)
	}
	return json.RawMessage(raw), nil
}

// SetUserData stores a value under key
func (s *UserDataStore) SetUserData(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("%w: user data %q is not valid JSON", domain.ErrInvalidInput, key)
	}

	query := `
		INSERT INTO user_data (user_id, key, value, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (user_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, s.userID, key, string(value), time.Now()); err != nil {
		return fmt.Errorf("failed to set user data %q: %w", key, err)
	}
	return nil
}

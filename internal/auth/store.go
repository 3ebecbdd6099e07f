package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshStore tracks issued refresh tokens by jti in Redis. A token whose
// jti is absent (expired or revoked) cannot mint new access tokens.
type RefreshStore struct {
	client *redis.Client
	prefix string
}

// NewRefreshStore returns a store using the given client.
func NewRefreshStore(client *redis.Client) *RefreshStore {
	return &RefreshStore{client: client, prefix: "agrigate:refresh:"}
}

// Save registers a refresh token id for the user with the token's TTL.
func (s *RefreshStore) Save(ctx context.Context, jti string, userID int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+jti, strconv.FormatInt(userID, 10), ttl).Err(); err != nil {
		return fmt.Errorf("auth: save refresh token: %w", err)
	}
	return nil
}

// Valid reports whether the refresh token id is still registered.
func (s *RefreshStore) Valid(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("auth: check refresh token: %w", err)
	}
	return n > 0, nil
}

// Revoke drops the refresh token id.
func (s *RefreshStore) Revoke(ctx context.Context, jti string) error {
	if err := s.client.Del(ctx, s.prefix+jti).Err(); err != nil {
		return fmt.Errorf("auth: revoke refresh token: %w", err)
	}
	return nil
}

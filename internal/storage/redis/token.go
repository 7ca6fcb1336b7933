package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const denylistKeyPrefix = "jti:denied:"

// TokenStorage is the access-token denylist. Entries are keyed by JTI and
// expire with the token itself, so the set stays small.
type TokenStorage struct {
	client *redis.Client
}

func NewTokenStorage(client *redis.Client) *TokenStorage {
	return &TokenStorage{client: client}
}

func (s *TokenStorage) InvalidateToken(ctx context.Context, jti string, expiration time.Duration) error {
	if expiration <= 0 {
		// Token already past its exp claim; nothing to deny.
		return nil
	}
	return s.client.Set(ctx, denylistKeyPrefix+jti, "revoked", expiration).Err()
}

func (s *TokenStorage) IsTokenInvalidated(ctx context.Context, jti string) (bool, error) {
	_, err := s.client.Get(ctx, denylistKeyPrefix+jti).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

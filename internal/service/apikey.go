package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/models"
)

const (
	CurrentAPIKeyRedisKey      = "apikey:current"
	OldAPIKeyRedisKey          = "apikey:old"
	APIKeyRotationTimeRedisKey = "apikey:rotation_time"

	apiKeyRotationGrace = 24 * time.Hour
)

// APIKeyService validates the service-to-service API key the auth layer
// presents on every call. Keys are stored hashed in redis; after a rotation
// the previous key stays valid for a 24h grace window.
type APIKeyService struct {
	rdb *redis.Client
	log *zap.SugaredLogger
}

func NewAPIKeyService(rdb *redis.Client, log *zap.SugaredLogger) *APIKeyService {
	return &APIKeyService{rdb: rdb, log: log}
}

// SyncAPIKey pushes the key from the environment into redis, demoting the
// previous key to the grace slot when it changed.
func (s *APIKeyService) SyncAPIKey(ctx context.Context) error {
	newKey := os.Getenv("SESSIOND_API_KEY")
	if newKey == "" {
		return fmt.Errorf("SESSIOND_API_KEY is empty during sync attempt")
	}

	hashedNewKey := s.hashAPIKey(newKey)

	currentHashedKey, err := s.rdb.Get(ctx, CurrentAPIKeyRedisKey).Result()
	if err != nil {
		if err == redis.Nil {
			return s.rdb.Set(ctx, CurrentAPIKeyRedisKey, hashedNewKey, 0).Err()
		}
		return fmt.Errorf("failed to get current API key from Redis: %w", err)
	}

	if len(hashedNewKey) == len(currentHashedKey) && subtle.ConstantTimeCompare([]byte(hashedNewKey), []byte(currentHashedKey)) == 1 {
		s.log.Info("Skipping key sync: new key is the same as the current one.")
		return nil
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, OldAPIKeyRedisKey, currentHashedKey, apiKeyRotationGrace)
	pipe.Set(ctx, CurrentAPIKeyRedisKey, hashedNewKey, 0)
	pipe.Set(ctx, APIKeyRotationTimeRedisKey, time.Now().UTC().Format(time.RFC3339), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to sync API key in Redis: %w", err)
	}

	s.log.Info("API Key synced successfully.")
	return nil
}

func (s *APIKeyService) IsValidAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	hashedKey := s.hashAPIKey(key)

	currentHashedKey, err := s.rdb.Get(ctx, CurrentAPIKeyRedisKey).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("failed to get current API key from Redis: %w", err)
	}

	if len(hashedKey) == len(currentHashedKey) && subtle.ConstantTimeCompare([]byte(hashedKey), []byte(currentHashedKey)) == 1 {
		return true, nil
	}

	oldHashedKey, err := s.rdb.Get(ctx, OldAPIKeyRedisKey).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("failed to get old API key from Redis: %w", err)
	}

	if oldHashedKey != "" && len(hashedKey) == len(oldHashedKey) && subtle.ConstantTimeCompare([]byte(hashedKey), []byte(oldHashedKey)) == 1 {
		// Old key stays valid only inside the rotation grace window; the
		// redis TTL on the slot enforces the cutoff.
		return true, nil
	}

	return false, nil
}

// GetAPIKey adapts the validity check to the repository contract consumed by
// the API-key middleware.
func (s *APIKeyService) GetAPIKey(ctx context.Context, apiKey string) (*models.APIKey, error) {
	ok, err := s.IsValidAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &models.APIKey{Key: apiKey, ClientID: "auth-layer"}, nil
}

func (s *APIKeyService) hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

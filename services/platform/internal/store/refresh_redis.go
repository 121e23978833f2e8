package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"secondhand/internal/util"
)

const refreshKeyPrefix = "secondhand:platform:refresh:"

// RedisRefreshTokenStore keeps refresh tokens in Redis with TTL.
type RedisRefreshTokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRefreshTokenStore builds a Redis-backed refresh token store.
func NewRedisRefreshTokenStore(addr, password string, ttl time.Duration) *RedisRefreshTokenStore {
	return &RedisRefreshTokenStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// NewToken writes a token -> userID mapping with TTL.
func (s *RedisRefreshTokenStore) NewToken(userID string) (string, error) {
	token := util.NewID()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, refreshKeyPrefix+token, userID, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// GetUserIDByToken resolves a token to its user ID.
func (s *RedisRefreshTokenStore) GetUserIDByToken(token string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	val, err := s.client.Get(ctx, refreshKeyPrefix+token).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// DeleteToken removes a token mapping.
func (s *RedisRefreshTokenStore) DeleteToken(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, refreshKeyPrefix+token).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

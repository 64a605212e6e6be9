package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RefreshStore keeps hashed refresh tokens and the user they belong to
type RefreshStore interface {
	Save(ctx context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error
	Lookup(ctx context.Context, tokenHash string) (uuid.UUID, error)
	Delete(ctx context.Context, tokenHash string) error
}

// RedisRefreshStore stores refresh:<hash> -> user id with the refresh TTL
type RedisRefreshStore struct {
	client *redis.Client // nil if Redis disabled
}

func NewRedisRefreshStore(client *redis.Client) *RedisRefreshStore {
	return &RedisRefreshStore{client: client}
}

func refreshKey(tokenHash string) string {
	return "refresh:" + tokenHash
}

func (s *RedisRefreshStore) Save(ctx context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error {
	if s.client == nil {
		return nil // Skip if Redis not configured
	}
	return s.client.Set(ctx, refreshKey(tokenHash), userID.String(), ttl).Err()
}

func (s *RedisRefreshStore) Lookup(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	if s.client == nil {
		// Without Redis, refresh tokens don't work
		return uuid.Nil, ErrInvalidRefreshToken
	}
	val, err := s.client.Get(ctx, refreshKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(val)
}

func (s *RedisRefreshStore) Delete(ctx context.Context, tokenHash string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, refreshKey(tokenHash)).Err()
}

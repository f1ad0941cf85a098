package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/David-Byun/wemake/internal/metrics"
)

const unseenCountTTL = 30 * time.Second

// RedisStore handles Redis operations for caching. The realtime feed and the
// rate limiter share its client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func observeRedis(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}

// unseenCountKey returns the key for a profile's cached unseen notification count.
func unseenCountKey(profileID uuid.UUID) string {
	return fmt.Sprintf("notifications:%s:unseen", profileID)
}

// GetUnseenCount returns the cached unseen count. ok is false on a cache miss.
func (s *RedisStore) GetUnseenCount(ctx context.Context, profileID uuid.UUID) (count int64, ok bool, err error) {
	defer observeRedis(time.Now())

	count, err = s.client.Get(ctx, unseenCountKey(profileID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

// SetUnseenCount caches the unseen count for a short time.
func (s *RedisStore) SetUnseenCount(ctx context.Context, profileID uuid.UUID, count int64) error {
	defer observeRedis(time.Now())
	return s.client.Set(ctx, unseenCountKey(profileID), count, unseenCountTTL).Err()
}

// InvalidateUnseenCount drops the cached count so the next read hits the database.
func (s *RedisStore) InvalidateUnseenCount(ctx context.Context, profileID uuid.UUID) error {
	defer observeRedis(time.Now())
	return s.client.Del(ctx, unseenCountKey(profileID)).Err()
}

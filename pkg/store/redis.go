package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// loginCounterKey is incremented once per successful login when the redis driver is active.
const loginCounterKey = "trellis:logins"

// RedisStore keeps documents in a Redis instance, allowing a fleet of processes to share one
// session.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a RedisStore connected to the instance described by cfg.
func NewRedisStore(cfg Config) *RedisStore {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
	}
}

// NewRedisStoreWithClient wraps an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	// No TTL: staleness is judged from the document's own expireTime.
	return s.client.Set(ctx, key, data, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// RecordLogin increments the shared logged-in counter.
func (s *RedisStore) RecordLogin(ctx context.Context) error {
	return s.client.Incr(ctx, loginCounterKey).Err()
}

// LoginCount reports the number of successful logins recorded by the fleet.
func (s *RedisStore) LoginCount(ctx context.Context) (int64, error) {
	n, err := s.client.Get(ctx, loginCounterKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Package store — Redis-backed Store implementation.
package store

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Address  string
	Password string
	Database int
	PoolSize int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements Store against a Redis server. Every method is a
// single round trip, so per-command atomicity comes straight from Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, unavailable("PING", "", err)
	}

	log.Info().
		Str("address", cfg.Address).
		Int("database", cfg.Database).
		Msg("Connected to Redis store")

	return &RedisStore{client: rdb}, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	return n, unavailable("INCR", key, err)
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	v, err := s.client.HIncrBy(ctx, key, field, n).Result()
	return v, unavailable("HINCRBY", key, err)
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable("HGETALL", key, err)
	}
	return m, nil
}

func (s *RedisStore) LPush(ctx context.Context, key, value string) error {
	return unavailable("LPUSH", key, s.client.LPush(ctx, key, value).Err())
}

func (s *RedisStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	return unavailable("LTRIM", key, s.client.LTrim(ctx, key, start, stop).Err())
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, unavailable("LRANGE", key, err)
	}
	return vals, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("GET", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	// No TTL: all DelegateWatch keys persist until explicit reset.
	return unavailable("SET", key, s.client.Set(ctx, key, value, 0).Err())
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	return unavailable("DEL", "", s.client.Del(ctx, keys...).Err())
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return unavailable("PING", "", s.client.Ping(ctx).Err())
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

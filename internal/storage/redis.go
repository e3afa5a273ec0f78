package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr" yaml:"addr"`
	Password string `koanf:"password" json:"password" yaml:"password"`
	DB       int    `koanf:"db" json:"db" yaml:"db"`
	Prefix   string `koanf:"prefix" json:"prefix" yaml:"prefix"`
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "savevault:",
	}
}

// RedisStore implements Store on a Redis server. Keys are namespaced with
// the configured prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, mapRedisErr(err)
	}
	return blob, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, blob []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return mapRedisErr(s.client.Set(ctx, s.prefix+key, blob, 0).Err())
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return mapRedisErr(s.client.Del(ctx, s.prefix+key).Err())
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func mapRedisErr(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	return err
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bnema/mediadesk/config"
	"github.com/bnema/mediadesk/internal/infrastructure/logger"
	"github.com/bnema/mediadesk/internal/port"
)

const keyPrefix = "mediadesk:prefs:"

// Store keeps each user's preferences in one Redis hash.
type Store struct {
	client *goredis.Client
	log    zerolog.Logger
}

func NewStore(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log := logger.WithComponent("preferences")
	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to Redis preference store")

	return newStoreWithClient(client, log), nil
}

func newStoreWithClient(client *goredis.Client, log zerolog.Logger) *Store {
	return &Store{client: client, log: log}
}

func userKey(user string) string {
	return keyPrefix + user
}

func (s *Store) Get(ctx context.Context, user, key string) (string, error) {
	v, err := s.client.HGet(ctx, userKey(user), key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", port.ErrPreferenceNotSet
	}
	if err != nil {
		return "", fmt.Errorf("redis hget %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, user, key, value string) error {
	if err := s.client.HSet(ctx, userKey(user), key, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, user, key string) error {
	if err := s.client.HDel(ctx, userKey(user), key).Err(); err != nil {
		return fmt.Errorf("redis hdel %s: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ port.PreferenceStore = (*Store)(nil)

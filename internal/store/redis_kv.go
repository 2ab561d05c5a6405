package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 8

type RedisKV struct {
	client    redis.UniversalClient
	keyPrefix string
	owned     bool
}

// NewRedisKV wraps an existing client. Close does not close it.
func NewRedisKV(client redis.UniversalClient, keyPrefix string) (*RedisKV, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "pixelpress"
	}
	return &RedisKV{client: client, keyPrefix: keyPrefix}, nil
}

func (s *RedisKV) key(key string) string {
	return s.keyPrefix + ":" + key
}

func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Update retries on WATCH conflicts and gives up with ErrConflict.
func (s *RedisKV) Update(ctx context.Context, key string, fn UpdateFunc) error {
	k := s.key(key)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		found := true
		if errors.Is(err, redis.Nil) {
			current, found = nil, false
		} else if err != nil {
			return err
		}

		next, err := fn(current, found)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for range maxUpdateRetries {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("redis update %q: %w", key, err)
	}
	return fmt.Errorf("redis update %q: %w", key, ErrConflict)
}

func (s *RedisKV) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

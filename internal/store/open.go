package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Backend string
	Dir     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	PostgresDSN string
	SQLitePath  string
}

// Open builds the KV backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendMemory:
		return NewMemoryKV(), nil
	case "", BackendFile:
		return NewFileKV(cfg.Dir)
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		kv, err := NewRedisKV(client, cfg.RedisPrefix)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		kv.owned = true
		return kv, nil
	case BackendPostgres:
		return NewPostgresKV(ctx, cfg.PostgresDSN)
	case BackendSQLite:
		return NewSQLiteKV(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

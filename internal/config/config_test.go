package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, time.Minute, cfg.API.RateLimitWindow)
	assert.Equal(t, "compressionPresets", cfg.Presets.Key)
	assert.Equal(t, "file", cfg.Presets.Backend)
	assert.Equal(t, ExportTargetDir, cfg.Export.Target)
	assert.False(t, cfg.Queue.Enabled)
	assert.Equal(t, 1, cfg.Queue.Concurrency)
	assert.Equal(t, pipeline.DefaultMaxPixels, cfg.Engine.MaxPixels)

	params, err := cfg.Engine.Params()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultParams(), params)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PIXELPRESS_API_ADDR", ":9090")
	t.Setenv("PIXELPRESS_QUALITY", "55")
	t.Setenv("PIXELPRESS_FORMAT", "png")
	t.Setenv("PIXELPRESS_BATCH_POLICY", "partial")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("WEBHOOK_TIMEOUT", "3s")
	t.Setenv("PIXELPRESS_QUEUE_ENABLED", "true")
	t.Setenv("ASYNC_QUEUE", "images")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.API.Addr)
	assert.Equal(t, 55, cfg.Engine.Quality)
	assert.Equal(t, "png", cfg.Engine.Format)
	assert.Equal(t, "partial", cfg.Batch.Policy)
	assert.Equal(t, "redis:6379", cfg.Store().RedisAddr)
	assert.Equal(t, 3*time.Second, cfg.Webhook.Timeout)
	assert.True(t, cfg.Queue.Enabled)
	assert.Equal(t, "images", cfg.Queue.Name)
	assert.Equal(t, "redis:6379", cfg.Redis.ClientOpt().Addr)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixelpress.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_width: 640\npresets:\n  backend: sqlite\n"), 0o644))
	t.Setenv(FileEnv, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Engine.MaxWidth)
	assert.Equal(t, "sqlite", cfg.Store().Backend)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string][2]string{
		"quality":       {"PIXELPRESS_QUALITY", "150"},
		"zero quality":  {"PIXELPRESS_QUALITY", "0"},
		"zero width":    {"PIXELPRESS_MAX_WIDTH", "0"},
		"format":        {"PIXELPRESS_FORMAT", "gif"},
		"batch policy":  {"PIXELPRESS_BATCH_POLICY", "maybe"},
		"export target": {"PIXELPRESS_EXPORT_TARGET", "ftp"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

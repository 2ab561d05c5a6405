package app

import (
	"context"
	"testing"

	"github.com/dunamismax/pixelpress/internal/config"
	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/export"
	"github.com/dunamismax/pixelpress/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Presets.Backend = store.BackendFile
	cfg.Presets.Dir = t.TempDir()
	cfg.Export.Dir = t.TempDir()
	return cfg
}

func TestNewWiresComponents(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := New(ctx, cfg, zerolog.Nop(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, domain.DefaultParams(), a.Params.Get())
	assert.IsType(t, &export.DirExporter{}, a.Exporter)
	assert.Empty(t, a.Presets.List())
	assert.False(t, a.Batch.Processing())
}

func TestNewLoadsPersistedPresets(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first, err := New(ctx, cfg, zerolog.Nop(), prometheus.NewRegistry())
	require.NoError(t, err)
	_, err = first.Presets.Save(ctx, domain.Preset{Name: "web", Quality: 70, Format: "webp", MaxWidth: 1280})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg, zerolog.Nop(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	web, ok := second.Presets.Find("web")
	require.True(t, ok)
	assert.Equal(t, 1280, web.MaxWidth)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Presets.Backend = "etcd"

	_, err := New(context.Background(), cfg, zerolog.Nop(), prometheus.NewRegistry())
	assert.Error(t, err)
}

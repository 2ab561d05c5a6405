package preset

import (
	"context"
	"testing"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, kv store.KV) *Store {
	t.Helper()
	if kv == nil {
		kv = store.NewMemoryKV()
	}
	return NewStore(kv, "", zerolog.Nop())
}

func TestLoadMissingKeyIsEmpty(t *testing.T) {
	s := newTestStore(t, nil)

	presets, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, presets)
	assert.Empty(t, s.List())
}

func TestLoadMalformedIsEmpty(t *testing.T) {
	ctx := context.Background()

	for _, raw := range []string{`not json`, `{"name":"web"}`, `[{"name":`, `null`} {
		t.Run(raw, func(t *testing.T) {
			kv := store.NewMemoryKV()
			require.NoError(t, kv.Set(ctx, DefaultKey, []byte(raw)))

			presets, err := newTestStore(t, kv).Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, presets)
		})
	}
}

func TestSaveThenApplyWebPreset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	_, err := s.Save(ctx, domain.Preset{Name: "web", Quality: 70, Format: "webp", MaxWidth: 1280, ApplyFilter: false})
	require.NoError(t, err)

	web, ok := s.Find("web")
	require.True(t, ok)

	params := Apply(web, domain.Params{Quality: 10, Format: domain.FormatPNG, MaxWidth: 50, ApplyFilter: true, Filter: domain.FilterSepia})
	assert.Equal(t, 70, params.Quality)
	assert.Equal(t, domain.FormatWebP, params.Format)
	assert.Equal(t, 1280, params.MaxWidth)
	assert.False(t, params.ApplyFilter)
	assert.Equal(t, domain.FilterSepia, params.Filter)
}

func TestPersistReloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()

	want := []domain.Preset{
		{Name: "web", Quality: 70, Format: "webp", MaxWidth: 1280},
		{Name: "print", Quality: 95, Format: "png", MaxWidth: 4000, ApplyFilter: true},
	}
	writer := newTestStore(t, kv)
	for _, p := range want {
		_, err := writer.Save(ctx, p)
		require.NoError(t, err)
	}

	got, err := newTestStore(t, kv).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, ok, err := kv.Get(ctx, DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[
		{"name":"web","quality":70,"format":"webp","maxWidth":1280,"applyFilter":false},
		{"name":"print","quality":95,"format":"png","maxWidth":4000,"applyFilter":true}
	]`, string(raw))
}

func TestSaveOverwritesByName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	_, err := s.Save(ctx, domain.Preset{Name: "a", Quality: 10, Format: "jpeg", MaxWidth: 100})
	require.NoError(t, err)
	_, err = s.Save(ctx, domain.Preset{Name: "b", Quality: 20, Format: "jpeg", MaxWidth: 200})
	require.NoError(t, err)
	saved, err := s.Save(ctx, domain.Preset{Name: "a", Quality: 99, Format: "png", MaxWidth: 300})
	require.NoError(t, err)

	require.Len(t, saved, 2)
	assert.Equal(t, "a", saved[0].Name)
	assert.Equal(t, 99, saved[0].Quality)
	assert.Equal(t, "b", saved[1].Name)
}

func TestSaveMergesConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	first := newTestStore(t, kv)
	second := newTestStore(t, kv)

	_, err := first.Save(ctx, domain.Preset{Name: "a", Quality: 10, Format: "jpeg", MaxWidth: 100})
	require.NoError(t, err)
	saved, err := second.Save(ctx, domain.Preset{Name: "b", Quality: 20, Format: "jpeg", MaxWidth: 200})
	require.NoError(t, err)

	assert.Len(t, saved, 2, "save re-reads the persisted collection")
}

func TestSaveRejectsInvalidPreset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	_, err := s.Save(ctx, domain.Preset{Name: "  ", Quality: 70, Format: "jpeg", MaxWidth: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidPreset)

	_, err = s.Save(ctx, domain.Preset{Name: "x", Quality: 0, Format: "jpeg", MaxWidth: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidPreset)

	assert.Empty(t, s.List())
}

func TestSaveReplacesMalformedStoredValue(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, DefaultKey, []byte(`{broken`)))

	saved, err := newTestStore(t, kv).Save(ctx, domain.Preset{Name: "web", Quality: 70, Format: "webp", MaxWidth: 1280})
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

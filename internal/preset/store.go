package preset

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/store"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

const DefaultKey = "compressionPresets"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the persisted preset collection. Every save rewrites the whole
// collection under one key.
type Store struct {
	kv     store.KV
	key    string
	logger zerolog.Logger

	mu      sync.RWMutex
	presets []domain.Preset
}

func NewStore(kv store.KV, key string, logger zerolog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		kv:     kv,
		key:    key,
		logger: logger.With().Str("component", "preset_store").Str("key", key).Logger(),
	}
}

// Load reads the persisted collection. Missing or malformed data loads as
// an empty collection.
func (s *Store) Load(ctx context.Context) ([]domain.Preset, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}

	presets := s.decode(raw, ok)
	s.mu.Lock()
	s.presets = presets
	s.mu.Unlock()

	s.logger.Debug().Int("presets", len(presets)).Msg("loaded presets")
	return slices.Clone(presets), nil
}

// Save validates p and upserts it by name into the persisted collection.
// An existing preset with the same name is overwritten in place.
func (s *Store) Save(ctx context.Context, p domain.Preset) ([]domain.Preset, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p = domain.PresetFromParams(p.Name, domain.Params{
		Quality:     p.Quality,
		Format:      p.Format,
		MaxWidth:    p.MaxWidth,
		ApplyFilter: p.ApplyFilter,
	})

	var saved []domain.Preset
	err := s.kv.Update(ctx, s.key, func(current []byte, found bool) ([]byte, error) {
		saved = upsert(s.decode(current, found), p)
		return json.Marshal(saved)
	})
	if err != nil {
		return nil, fmt.Errorf("save preset %q: %w", p.Name, err)
	}

	s.mu.Lock()
	s.presets = saved
	s.mu.Unlock()

	s.logger.Info().Str("preset", p.Name).Int("presets", len(saved)).Msg("saved preset")
	return slices.Clone(saved), nil
}

func (s *Store) List() []domain.Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.presets)
}

func (s *Store) Find(name string) (domain.Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := slices.IndexFunc(s.presets, func(p domain.Preset) bool { return p.Name == name })
	if i < 0 {
		return domain.Preset{}, false
	}
	return s.presets[i], true
}

// Apply copies the preset's fields into params. Records are not touched.
func Apply(p domain.Preset, params domain.Params) domain.Params {
	return params.WithPreset(p)
}

func (s *Store) decode(raw []byte, found bool) []domain.Preset {
	if !found || len(raw) == 0 {
		return nil
	}

	var presets []domain.Preset
	if err := json.Unmarshal(raw, &presets); err != nil {
		s.logger.Warn().Err(err).Msg("stored presets are malformed, using empty collection")
		return nil
	}
	return presets
}

func upsert(presets []domain.Preset, p domain.Preset) []domain.Preset {
	for i := range presets {
		if presets[i].Name == p.Name {
			presets[i] = p
			return presets
		}
	}
	return append(presets, p)
}

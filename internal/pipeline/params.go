package pipeline

import (
	"sync"

	"github.com/dunamismax/pixelpress/internal/domain"
)

// ParamSet holds the parameters used for the next batch run. Applying a
// preset changes only this holder, never existing records.
type ParamSet struct {
	mu     sync.RWMutex
	params domain.Params
}

func NewParamSet(initial domain.Params) *ParamSet {
	return &ParamSet{params: initial.Normalize()}
}

func (s *ParamSet) Get() domain.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

func (s *ParamSet) Set(p domain.Params) error {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}

// ApplyPreset copies the preset's fields into the active parameters. The
// selected filter is kept.
func (s *ParamSet) ApplyPreset(preset domain.Preset) (domain.Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.params.WithPreset(preset).Normalize()
	if err := next.Validate(); err != nil {
		return s.params, err
	}
	s.params = next
	return next, nil
}

package images

import (
	"errors"
	"sync"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/id"
	"github.com/dunamismax/pixelpress/internal/preview"
)

var ErrNotFound = errors.New("image record not found")

// Store is the ordered collection of image records. Records are handed out
// by value and only change through the store's operations.
type Store struct {
	mu       sync.RWMutex
	records  []domain.ImageRecord
	previews *preview.Registry
}

func NewStore(previews *preview.Registry) *Store {
	if previews == nil {
		previews = preview.NewRegistry()
	}
	return &Store{previews: previews}
}

func (s *Store) Previews() *preview.Registry {
	return s.previews
}

// Add appends one record per upload and returns the new records.
func (s *Store) Add(uploads []domain.Upload) []domain.ImageRecord {
	added := make([]domain.ImageRecord, 0, len(uploads))
	for _, u := range uploads {
		added = append(added, domain.ImageRecord{
			ID:           id.New(),
			Name:         u.Name,
			ContentType:  u.ContentType,
			Original:     u.Data,
			OriginalSize: int64(len(u.Data)),
			Preview:      s.previews.Create(u.Data, u.ContentType),
		})
	}

	s.mu.Lock()
	s.records = append(s.records, added...)
	s.mu.Unlock()
	return added
}

// Remove deletes the record with the given id. It reports whether a record
// was removed.
func (s *Store) Remove(recordID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.records {
		if rec.ID != recordID {
			continue
		}
		s.records = append(s.records[:i:i], s.records[i+1:]...)
		s.previews.Release(rec.Preview)
		return true
	}
	return false
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		s.previews.Release(rec.Preview)
	}
	s.records = nil
}

// ReplaceAll installs records as the whole collection. Records without a
// live preview get one minted from their current bytes, and handles no
// longer referenced are released.
func (s *Store) ReplaceAll(records []domain.ImageRecord) {
	next := make([]domain.ImageRecord, len(records))
	live := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if _, ok := s.previews.Resolve(rec.Preview); !ok {
			rec.Preview = s.previews.Create(rec.CurrentBytes(), rec.CurrentContentType())
		}
		live[rec.Preview] = struct{}{}
		next[i] = rec
	}

	s.mu.Lock()
	prev := s.records
	s.records = next
	s.mu.Unlock()

	for _, rec := range prev {
		if _, ok := live[rec.Preview]; !ok {
			s.previews.Release(rec.Preview)
		}
	}
}

// SetProgress replaces the record with a copy carrying the new progress.
func (s *Store) SetProgress(recordID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.records {
		if rec.ID == recordID {
			s.records[i] = rec.WithProgress(progress)
			return nil
		}
	}
	return ErrNotFound
}

func (s *Store) List() []domain.ImageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ImageRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Get(recordID string) (domain.ImageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ID == recordID {
			return rec, true
		}
	}
	return domain.ImageRecord{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

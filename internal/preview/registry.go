package preview

import (
	"sync"

	"github.com/dunamismax/pixelpress/internal/id"
)

// Handle is an opaque reference to previewable bytes, in the blob:<uuid> form.
type Handle = string

type Blob struct {
	Data        []byte
	ContentType string
}

// Registry keeps the bytes behind every live preview handle. Handles stay
// valid until released.
type Registry struct {
	mu    sync.RWMutex
	blobs map[Handle]Blob
}

func NewRegistry() *Registry {
	return &Registry{blobs: make(map[Handle]Blob)}
}

func (r *Registry) Create(data []byte, contentType string) Handle {
	h := id.Blob()

	r.mu.Lock()
	r.blobs[h] = Blob{Data: data, ContentType: contentType}
	r.mu.Unlock()
	return h
}

func (r *Registry) Resolve(h Handle) (Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[h]
	return b, ok
}

// Release drops a handle. Releasing an unknown handle is a no-op.
func (r *Registry) Release(h Handle) {
	if h == "" {
		return
	}
	r.mu.Lock()
	delete(r.blobs, h)
	r.mu.Unlock()
}

// Len reports the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

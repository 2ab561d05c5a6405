package store

import (
	"context"
	"errors"
)

var ErrConflict = errors.New("concurrent update conflict")

// UpdateFunc receives the current value (found is false when the key is
// absent) and returns the value to write.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

// KV is a durable byte store addressed by key. Update runs fn and writes its
// result atomically with respect to other Update calls on the same key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}

package cache

import "context"

// Store persists entries behind the in-memory mirror.
//
// Load returns ErrCacheMiss when the key is absent.
type Store interface {
	Name() string
	Load(ctx context.Context, key string) (*Entry, error)
	Save(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

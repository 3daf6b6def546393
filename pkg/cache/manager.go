package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// FetchFunc retrieves a payload from upstream on a cache miss.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Manager mirrors a Store in memory.
type Manager struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewManager creates a cache manager over store.
func NewManager(store Store) *Manager {
	if store == nil {
		panic("cache store cannot be nil")
	}
	return &Manager{
		store:   store,
		logger:  log.With().Str("component", "payload-cache").Str("store", store.Name()).Logger(),
		now:     time.Now,
		entries: make(map[string]*Entry),
	}
}

// Get returns the entry for key, from memory first, then from the store.
// Returns ErrCacheMiss if neither has it.
func (m *Manager) Get(ctx context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if ok {
		CacheHits.WithLabelValues("memory").Inc()
		return entry, nil
	}

	entry, err := m.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("load %q: %w", key, err)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()

	CacheHits.WithLabelValues(m.store.Name()).Inc()
	return entry, nil
}

// Set stores payload under key. A failed store write is logged and the
// entry is still served from memory.
func (m *Manager) Set(ctx context.Context, key string, payload json.RawMessage) *Entry {
	entry := &Entry{
		Key:       key,
		FetchedAt: m.now().UTC(),
		Payload:   payload,
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()

	if err := m.store.Save(ctx, entry); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		m.logger.Warn().Err(err).Str("key", key).Msg("Failed to persist cache entry")
	}
	return entry
}

// Delete removes key from memory and the store.
func (m *Manager) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()

	if err := m.store.Delete(ctx, key); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Clear removes every entry from memory and the store.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]*Entry)
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// GetOrFetch returns the cached entry for key when it is younger than
// maxAge, otherwise calls fetch and caches the result. Store read errors
// are logged and treated as a miss.
func (m *Manager) GetOrFetch(ctx context.Context, key string, maxAge time.Duration, fetch FetchFunc) (*Entry, error) {
	entry, err := m.Get(ctx, key)
	switch {
	case err == nil && entry.Fresh(m.now(), maxAge):
		return entry, nil
	case err != nil && !errors.Is(err, ErrCacheMiss):
		m.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, fetching upstream")
	}

	payload, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	return m.Set(ctx, key, payload), nil
}

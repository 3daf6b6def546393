// Package manifest keeps a local copy of the Destiny 2 item manifest.
//
// The cache loads whatever is persisted on disk, checks the upstream
// version and downloads a new generation when the version changed or the
// local copy outlived its TTL. When the upstream cannot be reached, stale
// data keeps being served in a degraded state.
//
// Readers never block on a refresh: each generation is an immutable
// snapshot swapped in with a single atomic store.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Defaults.
const (
	DefaultTTL            = 24 * time.Hour
	DefaultContentBaseURL = "https://www.bungie.net"
	DefaultLocale         = "en"
	DefaultSearchLimit    = 25
)

var (
	// ErrNotInitialized is returned by queries issued before the cache is
	// ready. It is distinct from an empty result.
	ErrNotInitialized = errors.New("manifest cache not initialized")

	// ErrEmptyQuery is returned by Search for a blank query.
	ErrEmptyQuery = errors.New("search query is empty")
)

// Config holds the manifest cache configuration.
type Config struct {
	// Dir holds the persisted tables.
	Dir string

	// TTL is the maximum age of a generation before it is re-downloaded
	// even if the upstream version is unchanged.
	TTL time.Duration

	// ContentBaseURL is prefixed to the manifest's content paths.
	ContentBaseURL string

	// Locale selects the content path set.
	Locale string

	// Compress stores tables zstd-compressed (*.json.zst).
	Compress bool

	// HTTPClient downloads the content tables.
	HTTPClient *http.Client
}

// DefaultDir returns ~/.destiny2-mcp/cache, or a temp-dir equivalent when
// the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".destiny2-mcp", "cache")
	}
	return filepath.Join(home, ".destiny2-mcp", "cache")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Dir:            DefaultDir(),
		TTL:            DefaultTTL,
		ContentBaseURL: DefaultContentBaseURL,
		Locale:         DefaultLocale,
	}
}

// Cache is the manifest cache. It is safe for concurrent use.
type Cache struct {
	source     ManifestSource
	config     Config
	store      diskStore
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time

	// mu serializes Initialize and Refresh.
	mu sync.Mutex

	state    atomic.Int32
	degraded atomic.Bool
	snap     atomic.Pointer[snapshot]
}

// New creates a cache. Nothing is loaded until Initialize.
func New(source ManifestSource, cfg Config) (*Cache, error) {
	if source == nil {
		return nil, fmt.Errorf("manifest source is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("ttl must be positive (got %v)", cfg.TTL)
	}
	if cfg.ContentBaseURL == "" {
		cfg.ContentBaseURL = DefaultContentBaseURL
	}
	cfg.ContentBaseURL = strings.TrimRight(cfg.ContentBaseURL, "/")
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}

	return &Cache{
		source:     source,
		config:     cfg,
		store:      diskStore{dir: cfg.Dir, compress: cfg.Compress},
		httpClient: httpClient,
		logger:     log.With().Str("component", "manifest-cache").Logger(),
		now:        time.Now,
	}, nil
}

// Initialize loads the persisted manifest and brings it up to date.
//
// When the upstream is unreachable or the download fails, previously
// persisted data is served in degraded mode and nil is returned. Without
// any usable data the cache moves to the failed state and the error is
// returned; Initialize may be called again later. Once ready, further
// calls return nil immediately.
func (c *Cache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateReady {
		return nil
	}
	c.setState(StateLoading)

	current, err := c.store.load()
	if err != nil {
		c.logger.Warn().Err(err).Str("dir", c.config.Dir).Msg("Ignoring unreadable manifest cache")
		current = nil
	}
	if !current.empty() {
		c.logger.Info().
			Str("version", current.version.Version).
			Int("items", len(current.items)).
			Msg("Loaded manifest from disk")
	}

	next, err := c.update(ctx, current)
	if err != nil {
		if next.empty() {
			c.setState(StateFailed)
			manifestRefreshesTotal.WithLabelValues("failed").Inc()
			c.logger.Error().Err(err).Msg("Manifest initialization failed")
			return fmt.Errorf("initialize manifest: %w", err)
		}
		manifestRefreshesTotal.WithLabelValues("stale").Inc()
		c.logger.Warn().
			Err(err).
			Int("items", len(next.items)).
			Msg("Manifest update failed, serving stale data")
		c.publish(next, true)
		return nil
	}

	c.publish(next, false)
	c.logger.Info().
		Str("version", next.version.Version).
		Int("items", len(next.items)).
		Msg("Manifest cache ready")
	return nil
}

// Refresh re-checks the upstream version of a ready cache and downloads a
// new generation if needed. On failure the current data stays in place,
// the cache is marked degraded, and the error is returned.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateReady {
		return ErrNotInitialized
	}

	next, err := c.update(ctx, c.snap.Load())
	if err != nil {
		manifestRefreshesTotal.WithLabelValues("stale").Inc()
		c.degraded.Store(true)
		return fmt.Errorf("refresh manifest: %w", err)
	}
	c.publish(next, false)
	return nil
}

// update checks the upstream version and downloads a new generation when
// current is missing, outdated or expired. It always returns the
// snapshot to serve, which is current when the update failed.
func (c *Cache) update(ctx context.Context, current *snapshot) (*snapshot, error) {
	m, err := c.source.GetManifest(ctx)
	if err != nil {
		return current, fmt.Errorf("query manifest version: %w", err)
	}

	reason := c.refreshReason(current, m.Version)
	if reason == "" {
		manifestRefreshesTotal.WithLabelValues("current").Inc()
		c.logger.Info().
			Str("version", current.version.Version).
			Dur("age", c.now().Sub(current.version.DownloadedAt)).
			Msg("Using cached manifest")
		return current, nil
	}

	cached := ""
	if current != nil {
		cached = current.version.Version
	}
	c.logger.Info().
		Str("reason", reason).
		Str("version", m.Version).
		Str("cached_version", cached).
		Msg("Downloading manifest")

	next, err := c.download(ctx, m)
	if err != nil {
		return current, fmt.Errorf("download manifest %s: %w", m.Version, err)
	}

	if err := c.store.save(next); err != nil {
		// The new generation is still served from memory.
		c.logger.Error().Err(err).Str("dir", c.config.Dir).Msg("Failed to persist manifest")
	}

	manifestRefreshesTotal.WithLabelValues("downloaded").Inc()
	c.logger.Info().
		Str("version", next.version.Version).
		Int("items", len(next.items)).
		Int("seasons", len(next.seasons)).
		Msg("Manifest downloaded")
	return next, nil
}

// refreshReason returns why current must be replaced, or "" if it is
// still valid for version.
func (c *Cache) refreshReason(current *snapshot, version string) string {
	switch {
	case current.empty() || current.version.Version == "":
		return "no cache"
	case current.version.Version != version:
		return "version mismatch"
	case current.version.Expired(c.now(), c.config.TTL):
		return "cache expired"
	default:
		return ""
	}
}

func (c *Cache) publish(s *snapshot, degraded bool) {
	c.snap.Store(s)
	c.degraded.Store(degraded)
	c.setState(StateReady)
	manifestItems.Set(float64(len(s.items)))
}

func (c *Cache) setState(s State) {
	c.state.Store(int32(s))
}

// State returns the lifecycle state.
func (c *Cache) State() State {
	return State(c.state.Load())
}

// ready returns the snapshot to query, or ErrNotInitialized.
func (c *Cache) ready() (*snapshot, error) {
	if c.State() != StateReady {
		return nil, ErrNotInitialized
	}
	s := c.snap.Load()
	if s == nil {
		return nil, ErrNotInitialized
	}
	return s, nil
}

// GetByID returns the item with the given id.
func (c *Cache) GetByID(id uint32) (ItemDefinition, bool, error) {
	s, err := c.ready()
	if err != nil {
		return ItemDefinition{}, false, err
	}
	item, ok := s.items[id]
	if !ok {
		return ItemDefinition{}, false, nil
	}
	return *item, true, nil
}

// SeasonByHash returns a season definition.
func (c *Cache) SeasonByHash(hash uint32) (Season, bool, error) {
	s, err := c.ready()
	if err != nil {
		return Season{}, false, err
	}
	season, ok := s.seasons[hash]
	return season, ok, nil
}

// ItemCount returns the number of items served, 0 before ready.
func (c *Cache) ItemCount() int {
	s := c.snap.Load()
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Status returns the current state of the cache.
func (c *Cache) Status() Status {
	st := Status{State: c.State()}
	st.StateName = st.State.String()

	s := c.snap.Load()
	if st.State != StateReady || s == nil {
		return st
	}

	st.Degraded = c.degraded.Load()
	st.Version = s.version.Version
	st.DownloadedAt = s.version.DownloadedAt
	if !s.version.DownloadedAt.IsZero() {
		st.Age = c.now().Sub(s.version.DownloadedAt)
	}
	st.Items = len(s.items)
	st.Seasons = len(s.seasons)
	return st
}

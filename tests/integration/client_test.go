//go:build integration

package integration

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/destiny-client/internal/testutil"
	"github.com/Sternrassler/destiny-client/pkg/cache"
	"github.com/Sternrassler/destiny-client/pkg/client"
	"github.com/Sternrassler/destiny-client/pkg/manifest"
	"github.com/Sternrassler/destiny-client/pkg/ratelimit"
)

const testAPIKey = "0123456789abcdef0123456789abcdef"

const pgcrPath = "/Platform/Destiny2/Stats/PostGameCarnageReport/14789523652/"

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newClient(t *testing.T, mock *testutil.MockBungie, limiter *ratelimit.Spacer, maxRetries int) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig(testAPIKey)
	cfg.BaseURL = mock.PlatformURL()
	cfg.StatsBaseURL = mock.PlatformURL()
	cfg.RateLimit = client.MinRateLimit
	cfg.MaxRetries = maxRetries
	cfg.Timeout = client.MinTimeout
	cfg.Limiter = limiter

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func newManifest(t *testing.T, source manifest.ManifestSource, dir, contentBaseURL string) *manifest.Cache {
	t.Helper()

	cfg := manifest.DefaultConfig()
	cfg.Dir = dir
	cfg.ContentBaseURL = contentBaseURL
	cfg.Compress = true

	m, err := manifest.New(source, cfg)
	if err != nil {
		t.Fatalf("Failed to create manifest cache: %v", err)
	}
	return m
}

func serveFixture(mock *testutil.MockBungie, version string) {
	horn := testutil.ItemFixture(1363886209, "Gjallarhorn", 3, 6)
	horn["iconWatermark"] = "/common/destiny2_content/icons/fc31e8ede7cc15908d6e2b39167afbcf.png"

	mock.ServeManifest(testutil.ManifestFixture{
		Version: version,
		Items: map[string]any{
			"1363886209": horn,
			"2171478765": testutil.ItemFixture(2171478765, "Fatebringer", 3, 5),
		},
	})
}

// TestFullRequestFlow tests the complete flow: manifest download → search →
// payload fetch through the Redis-backed cache.
func TestFullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockBungie()
	defer mock.Close()

	serveFixture(mock, "v1")
	mock.SetResponse(pgcrPath, testutil.NewHealthyResponse(map[string]any{
		"activityDetails": map[string]any{"instanceId": "14789523652", "mode": 4},
	}))

	c := newClient(t, mock, nil, 0)
	ctx := context.Background()

	items := newManifest(t, c, t.TempDir(), mock.URL())
	if err := items.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	results, err := items.Search("gjallar", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Source != "Lightfall (S20)" {
		t.Fatalf("Search results = %+v, want one Lightfall item", results)
	}

	store := cache.NewRedisStore(redisClient, time.Hour)
	key := cache.CacheKey{Endpoint: "pgcr", PathParams: map[string]string{"id": "14789523652"}}.String()
	fetch := func(ctx context.Context) (json.RawMessage, error) {
		return c.GetPostGameCarnageReport(ctx, "14789523652")
	}

	// Request 1: miss → Bungie → Redis
	entry, err := cache.NewManager(store).GetOrFetch(ctx, key, time.Hour, fetch)
	if err != nil {
		t.Fatalf("Request 1 failed: %v", err)
	}
	if mock.PathCount(pgcrPath) != 1 {
		t.Errorf("After request 1: PGCR requests = %d, want 1", mock.PathCount(pgcrPath))
	}

	// Request 2: a fresh manager (empty memory layer) is served by Redis
	entry2, err := cache.NewManager(store).GetOrFetch(ctx, key, time.Hour, fetch)
	if err != nil {
		t.Fatalf("Request 2 failed: %v", err)
	}
	if mock.PathCount(pgcrPath) != 1 {
		t.Errorf("After request 2: PGCR requests = %d, want 1", mock.PathCount(pgcrPath))
	}
	if string(entry2.Payload) != string(entry.Payload) {
		t.Errorf("Payload from Redis = %s, want %s", entry2.Payload, entry.Payload)
	}
}

// TestManifestRestartOffline tests that a restart without network serves the
// persisted manifest in degraded mode.
func TestManifestRestartOffline(t *testing.T) {
	dir := t.TempDir()
	mock := testutil.NewMockBungie()
	serveFixture(mock, "v1")

	ctx := context.Background()
	first := newManifest(t, newClient(t, mock, nil, 0), dir, mock.URL())
	if err := first.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	offlineURL := mock.PlatformURL()
	mock.Close()

	cfg := client.DefaultConfig(testAPIKey)
	cfg.BaseURL = offlineURL
	cfg.RateLimit = client.MinRateLimit
	cfg.MaxRetries = 0
	offline, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	second := newManifest(t, offline, dir, offlineURL)
	if err := second.Initialize(ctx); err != nil {
		t.Fatalf("Initialize with stale data failed: %v", err)
	}

	status := second.Status()
	if !status.Degraded || status.Version != "v1" || status.Items != 2 {
		t.Errorf("Status = %+v, want degraded v1 with 2 items", status)
	}

	item, ok, err := second.GetByID(2171478765)
	if err != nil || !ok || item.Name != "Fatebringer" {
		t.Errorf("GetByID = %+v, %v, %v", item, ok, err)
	}
}

// TestManifestVersionChange tests that Refresh replaces the generation
// when the upstream version moves on.
func TestManifestVersionChange(t *testing.T) {
	mock := testutil.NewMockBungie()
	defer mock.Close()
	serveFixture(mock, "v1")

	ctx := context.Background()
	items := newManifest(t, newClient(t, mock, nil, 0), t.TempDir(), mock.URL())
	if err := items.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	mock.ServeManifest(testutil.ManifestFixture{
		Version: "v2",
		Items: map[string]any{
			"42": testutil.ItemFixture(42, "Ace of Spades", 3, 6),
		},
	})
	if err := items.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if got := items.Status().Version; got != "v2" {
		t.Errorf("Version = %q, want v2", got)
	}
	if results, _ := items.Search("fatebringer", 10); len(results) != 0 {
		t.Errorf("Old generation still searchable: %+v", results)
	}
}

// TestRetry5xxErrors tests that 5xx responses are retried with real backoff.
func TestRetry5xxErrors(t *testing.T) {
	mock := testutil.NewMockBungie()
	defer mock.Close()

	mock.SetSequence(testutil.ManifestPath,
		testutil.NewServerErrorResponse(),
		testutil.NewServerErrorResponse(),
		testutil.NewHealthyResponse(map[string]any{"version": "v1"}),
	)

	c := newClient(t, mock, nil, 3)

	start := time.Now()
	m, err := c.GetManifest(context.Background())
	if err != nil {
		t.Fatalf("Expected success after retries, got: %v", err)
	}
	elapsed := time.Since(start)

	if m.Version != "v1" {
		t.Errorf("Version = %q, want v1", m.Version)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("Requests = %d, want 3", mock.RequestCount())
	}
	// 500ms + 1s of backoff before jitter
	if elapsed < 1500*time.Millisecond {
		t.Errorf("Elapsed = %v, want at least 1.5s of backoff", elapsed)
	}
}

// TestNoRetry4xxErrors tests that client errors fail after one attempt.
func TestNoRetry4xxErrors(t *testing.T) {
	mock := testutil.NewMockBungie()
	defer mock.Close()

	c := newClient(t, mock, nil, 3)

	_, err := c.GetPostGameCarnageReport(context.Background(), "1")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if !errors.Is(err, client.ErrTerminal) {
		t.Errorf("Expected terminal error, got %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("Requests = %d, want 1", mock.RequestCount())
	}
}

// TestSharedLimiterAcrossClients tests that two clients sharing a limiter
// never dispatch closer together than the configured spacing.
func TestSharedLimiterAcrossClients(t *testing.T) {
	mock := testutil.NewMockBungie()
	defer mock.Close()
	mock.SetResponse(testutil.ManifestPath, testutil.NewHealthyResponse(map[string]any{"version": "v1"}))

	limiter := ratelimit.NewSpacer(zerolog.Nop())
	a := newClient(t, mock, limiter, 0)
	b := newClient(t, mock, limiter, 0)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		c := a
		if i%2 == 1 {
			c = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetManifest(context.Background()); err != nil {
				t.Errorf("Request failed: %v", err)
			}
		}()
	}
	wg.Wait()

	times := mock.RequestTimes()
	if len(times) != 6 {
		t.Fatalf("Requests = %d, want 6", len(times))
	}
	for i := 1; i < len(times); i++ {
		// Server-side arrival jitter; dispatch spacing is exact.
		if gap := times[i].Sub(times[i-1]); gap < client.MinRateLimit-10*time.Millisecond {
			t.Errorf("Gap %d = %v, want >= %v", i, gap, client.MinRateLimit)
		}
	}
}

// TestRedisStoreExpiration tests that entries expire with the store TTL.
func TestRedisStoreExpiration(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := cache.NewRedisStore(redisClient, time.Second)

	entry := &cache.Entry{Key: "pgcr:id=1", FetchedAt: time.Now(), Payload: json.RawMessage(`{"a":1}`)}
	if err := store.Save(ctx, entry); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Load(ctx, entry.Key); err != nil {
		t.Fatalf("Load before expiry failed: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	if _, err := store.Load(ctx, entry.Key); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("Load after expiry = %v, want ErrCacheMiss", err)
	}
}

// TestRedisStoreClear tests that Clear removes only payload keys.
func TestRedisStoreClear(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := cache.NewRedisStore(redisClient, time.Hour)

	for i := 0; i < 250; i++ {
		entry := &cache.Entry{Key: "k" + strconv.Itoa(i), FetchedAt: time.Now(), Payload: json.RawMessage(`1`)}
		if err := store.Save(ctx, entry); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if err := redisClient.Set(ctx, "unrelated", "keep", 0).Err(); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	keys, err := redisClient.Keys(ctx, cache.RedisKeyPrefix+"*").Result()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Remaining payload keys = %d, want 0", len(keys))
	}
	if v, _ := redisClient.Get(ctx, "unrelated").Result(); v != "keep" {
		t.Errorf("Unrelated key = %q, want keep", v)
	}
}

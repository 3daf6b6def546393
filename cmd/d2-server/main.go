package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/destiny-client/pkg/cache"
	"github.com/Sternrassler/destiny-client/pkg/client"
	"github.com/Sternrassler/destiny-client/pkg/config"
	"github.com/Sternrassler/destiny-client/pkg/logging"
	"github.com/Sternrassler/destiny-client/pkg/manifest"
	"github.com/Sternrassler/destiny-client/pkg/raidhub"
	"github.com/Sternrassler/destiny-client/pkg/ratelimit"
)

const userAgent = "destiny-client/0.1.0"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to read .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n%s\n", err, config.Help())
		os.Exit(2)
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Secrets: []string{cfg.APIKey, cfg.RaidHubAPIKey},
	})
	logger := logging.NewLogger("d2-server")

	if !config.LooksLikeAPIKey(cfg.APIKey) {
		logger.Warn().Msg("BUNGIE_API_KEY does not look like a Bungie API key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger("d2-server")

	// One limiter for every client that talks to bungie.net.
	limiter := ratelimit.NewSpacer(logging.NewLogger("ratelimit"))

	clientCfg := client.DefaultConfig(cfg.APIKey)
	clientCfg.UserAgent = userAgent
	clientCfg.RateLimit = cfg.RateLimit()
	clientCfg.MaxRetries = cfg.APIMaxRetries
	clientCfg.Timeout = cfg.Timeout()
	clientCfg.Limiter = limiter

	bungie, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer bungie.Close()

	manifestCfg := manifest.DefaultConfig()
	manifestCfg.Dir = cfg.CacheDir
	manifestCfg.TTL = cfg.CacheTTL()
	manifestCfg.Compress = cfg.CacheCompress

	items, err := manifest.New(bungie, manifestCfg)
	if err != nil {
		return fmt.Errorf("create manifest cache: %w", err)
	}

	store, closeStore, err := payloadStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	payloads := cache.NewManager(store)

	var raidHubClient *raidhub.Client
	if cfg.RaidHubAPIKey != "" {
		raidHubClient, err = raidhub.New(raidhub.Config{
			APIKey:    cfg.RaidHubAPIKey,
			BaseURL:   cfg.RaidHubBaseURL,
			Timeout:   cfg.Timeout(),
			UserAgent: userAgent,
		})
		if err != nil {
			return fmt.Errorf("create raidhub client: %w", err)
		}
		defer raidHubClient.Close()
	} else {
		logger.Info().Msg("RAIDHUB_API_KEY not set, leaderboards served from cache only")
	}
	leaderboards := raidhub.NewLeaderboards(raidHubClient, payloads, raidhub.DefaultLeaderboardMaxAge)

	srv := newServer(bungie, items, payloads, leaderboards)

	// A failed first load is retried by the refresh loop; the HTTP
	// surface reports 503 until then.
	if err := items.Initialize(ctx); err != nil {
		logger.Error().Err(err).Msg("Manifest unavailable at startup")
	}
	go refreshLoop(ctx, items, cfg.CacheTTL())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("Starting server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// payloadStore picks Redis when REDIS_URL is set, the disk store otherwise.
func payloadStore(ctx context.Context, cfg config.Config) (cache.Store, func(), error) {
	if cfg.RedisURL == "" {
		store, err := cache.NewDiskStore(cfg.PayloadCacheDir(), cfg.CacheMaxBytes())
		if err != nil {
			return nil, nil, fmt.Errorf("create payload cache: %w", err)
		}
		return store, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return cache.NewRedisStore(redisClient, cfg.CacheTTL()), func() { redisClient.Close() }, nil
}

// initRetryInterval paces Initialize retries while no manifest is loaded.
const initRetryInterval = 5 * time.Minute

// refreshLoop re-checks the manifest once per TTL. Until the first load
// succeeds it retries Initialize more often.
func refreshLoop(ctx context.Context, items *manifest.Cache, ttl time.Duration) {
	logger := logging.NewLogger("manifest-refresh")

	for {
		wait := ttl
		if items.State() != manifest.StateReady {
			wait = min(ttl, initRetryInterval)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		var err error
		if items.State() == manifest.StateReady {
			err = items.Refresh(ctx)
		} else {
			err = items.Initialize(ctx)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Manifest refresh failed")
		}
	}
}

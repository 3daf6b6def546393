// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Sternrassler/destiny-client/pkg/manifest"
)

// ErrInvalidConfig wraps every validation failure returned by Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the service configuration.
type Config struct {
	APIKey string `env:"BUNGIE_API_KEY"`

	// RaidHubAPIKey enables live leaderboards; without it they are
	// served from the payload cache only.
	RaidHubAPIKey  string `env:"RAIDHUB_API_KEY"`
	RaidHubBaseURL string `env:"RAIDHUB_BASE_URL" envDefault:"https://api.raidhub.io"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	CacheDir       string `env:"CACHE_DIR"`
	CacheTTLHours  int    `env:"CACHE_TTL_HOURS" envDefault:"24"`
	CacheMaxSizeMB int    `env:"CACHE_MAX_SIZE_MB" envDefault:"100"`
	CacheCompress  bool   `env:"CACHE_COMPRESS" envDefault:"false"`

	APIRateLimitMS int `env:"API_RATE_LIMIT_MS" envDefault:"150"`
	APIMaxRetries  int `env:"API_MAX_RETRIES" envDefault:"3"`
	APITimeoutMS   int `env:"API_TIMEOUT_MS" envDefault:"30000"`

	// RedisURL switches the payload cache from disk to Redis.
	RedisURL string `env:"REDIS_URL"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
}

type intRange struct {
	name     string
	value    int
	min, max int
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom reads the configuration from the given variables only.
func LoadFrom(environ map[string]string) (Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.CacheDir == "" {
		cfg.CacheDir = manifest.DefaultDir()
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every violation at once, joined into one error that
// wraps ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("BUNGIE_API_KEY is required"))
	}

	if c.RaidHubBaseURL != "" {
		if u, err := url.Parse(c.RaidHubBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("RAIDHUB_BASE_URL must be an http(s) URL (got %q)", c.RaidHubBaseURL))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel))
	}

	for _, r := range []intRange{
		{"CACHE_TTL_HOURS", c.CacheTTLHours, 1, 168},
		{"CACHE_MAX_SIZE_MB", c.CacheMaxSizeMB, 50, 500},
		{"API_RATE_LIMIT_MS", c.APIRateLimitMS, 50, 1000},
		{"API_MAX_RETRIES", c.APIMaxRetries, 0, 5},
		{"API_TIMEOUT_MS", c.APITimeoutMS, 5000, 60000},
	} {
		if r.value < r.min || r.value > r.max {
			errs = append(errs, fmt.Errorf("%s must be between %d and %d (got %d)", r.name, r.min, r.max, r.value))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n%w", ErrInvalidConfig, errors.Join(errs...))
}

// CacheTTL returns the manifest TTL.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// CacheMaxBytes returns the payload cache budget.
func (c Config) CacheMaxBytes() int64 {
	return int64(c.CacheMaxSizeMB) << 20
}

// PayloadCacheDir is where the disk payload cache keeps its files.
func (c Config) PayloadCacheDir() string {
	return filepath.Join(c.CacheDir, "payloads")
}

// RateLimit returns the minimum spacing between API requests.
func (c Config) RateLimit() time.Duration {
	return time.Duration(c.APIRateLimitMS) * time.Millisecond
}

// Timeout returns the per-attempt API timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.APITimeoutMS) * time.Millisecond
}

var (
	hexKeyPattern   = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)
	alnumKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9]{16,}$`)
)

// LooksLikeAPIKey reports whether key has a plausible API key format:
// 32 hex characters, or at least 16 alphanumerics. A false result is worth
// a warning, not a refusal.
func LooksLikeAPIKey(key string) bool {
	return hexKeyPattern.MatchString(key) || alnumKeyPattern.MatchString(key)
}

// Help describes every variable Load understands.
func Help() string {
	return strings.TrimSpace(`
Destiny 2 API Server Configuration
==================================

Required Environment Variables:
  BUNGIE_API_KEY     Your Bungie API key (32 hex characters)
                     Get one at: https://www.bungie.net/en/Application

Optional Environment Variables:
  RAIDHUB_API_KEY    RaidHub API key; enables live leaderboards
  RAIDHUB_BASE_URL   RaidHub API root (default: https://api.raidhub.io)
  LOG_LEVEL          Logging level: debug, info, warn, error (default: info)
  LOG_PRETTY         Human-readable console logs (default: false)
  CACHE_DIR          Cache directory (default: ~/.destiny2-mcp/cache)
  CACHE_TTL_HOURS    Manifest cache TTL in hours (default: 24, range: 1-168)
  CACHE_MAX_SIZE_MB  Maximum payload cache size in MB (default: 100, range: 50-500)
  CACHE_COMPRESS     Store manifest tables zstd-compressed (default: false)
  API_RATE_LIMIT_MS  Minimum ms between API requests (default: 150, range: 50-1000)
  API_MAX_RETRIES    Max API retry attempts (default: 3, range: 0-5)
  API_TIMEOUT_MS     API request timeout in ms (default: 30000, range: 5000-60000)
  REDIS_URL          Keep the payload cache in Redis, e.g. redis://localhost:6379/0
  LISTEN_ADDR        HTTP listen address (default: :8080)

Example .env file:
  BUNGIE_API_KEY=your32characterhexkeyhere12345678
  LOG_LEVEL=info
  CACHE_TTL_HOURS=24
`)
}

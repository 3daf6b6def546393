// Package client provides the Bungie.net API client with shared rate
// limiting, retry with backoff, per-attempt timeouts, and error
// classification.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/destiny-client/pkg/ratelimit"
)

// Upstream endpoints and the credential header.
const (
	DefaultBaseURL      = "https://www.bungie.net/Platform"
	DefaultStatsBaseURL = "https://stats.bungie.net/Platform"
	APIKeyHeader        = "X-API-Key"
)

// Accepted tunable ranges. Values outside these are rejected by New.
const (
	MinRateLimit  = 50 * time.Millisecond
	MaxRateLimit  = time.Second
	MaxMaxRetries = 5
	MinTimeout    = 5 * time.Second
	MaxTimeout    = 60 * time.Second
)

// Client is the Bungie API client.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Spacer
	config     Config
	logger     zerolog.Logger
	redactor   redactor

	// sleep and backoff are swapped out in tests.
	sleep   func(ctx context.Context, d time.Duration) error
	backoff func(attempt int) time.Duration
}

// Config holds the client configuration.
type Config struct {
	// APIKey is sent as X-API-Key on every request (REQUIRED).
	APIKey string

	// BaseURL is prefixed to relative request paths.
	BaseURL string

	// StatsBaseURL serves post-game carnage reports.
	StatsBaseURL string

	// UserAgent is optional; Go's default is used when empty.
	UserAgent string

	// RateLimit is the minimum spacing between dispatched requests.
	RateLimit time.Duration

	// MaxRetries bounds retries after the first attempt.
	MaxRetries int

	// Timeout is the deadline for each individual attempt.
	Timeout time.Duration

	// Limiter is shared by every client talking to the same host.
	// A private limiter is created when nil.
	Limiter *ratelimit.Spacer

	// HTTPClient performs the requests. Its own Timeout should be zero or
	// larger than Timeout.
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:       apiKey,
		BaseURL:      DefaultBaseURL,
		StatsBaseURL: DefaultStatsBaseURL,
		RateLimit:    150 * time.Millisecond,
		MaxRetries:   3,
		Timeout:      30 * time.Second,
	}
}

// Validate checks the configuration. Every error wraps ErrInvalidConfig.
func (cfg Config) Validate() error {
	if cfg.APIKey == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}
	if cfg.RateLimit < MinRateLimit || cfg.RateLimit > MaxRateLimit {
		return fmt.Errorf("%w: rate limit must be between %v and %v (got %v)",
			ErrInvalidConfig, MinRateLimit, MaxRateLimit, cfg.RateLimit)
	}
	if cfg.MaxRetries < 0 || cfg.MaxRetries > MaxMaxRetries {
		return fmt.Errorf("%w: max retries must be between 0 and %d (got %d)",
			ErrInvalidConfig, MaxMaxRetries, cfg.MaxRetries)
	}
	if cfg.Timeout < MinTimeout || cfg.Timeout > MaxTimeout {
		return fmt.Errorf("%w: timeout must be between %v and %v (got %v)",
			ErrInvalidConfig, MinTimeout, MaxTimeout, cfg.Timeout)
	}
	return nil
}

// New creates a new Bungie client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.StatsBaseURL == "" {
		cfg.StatsBaseURL = DefaultStatsBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.StatsBaseURL = strings.TrimRight(cfg.StatsBaseURL, "/")

	logger := log.With().Str("component", "bungie-client").Logger()

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NewSpacer(logger)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		limiter:    limiter,
		config:     cfg,
		logger:     logger,
		redactor:   redactor(cfg.APIKey),
		sleep:      sleepContext,
		backoff:    Backoff,
	}, nil
}

// RequestOptions customizes a single request.
type RequestOptions struct {
	// Method defaults to GET.
	Method string

	// Body is JSON encoded and sent with Content-Type application/json.
	Body any

	// Header is merged over the client's headers.
	Header http.Header
}

// envelope is the wrapper around every Bungie platform response.
type envelope struct {
	Response        json.RawMessage `json:"Response"`
	ErrorCode       int             `json:"ErrorCode"`
	ThrottleSeconds int             `json:"ThrottleSeconds"`
	ErrorStatus     string          `json:"ErrorStatus"`
	Message         string          `json:"Message"`
}

// Request performs a Bungie API call and returns the envelope's Response
// payload. Transient failures are retried with backoff; anything else is
// returned as an *APIError wrapping ErrTerminal or ErrRetryExhausted.
//
// path is either relative to BaseURL or an absolute URL.
func (c *Client) Request(ctx context.Context, path string, opts *RequestOptions) (json.RawMessage, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	if opts.Body != nil {
		var err error
		body, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	url := c.resolve(path)
	endpoint := endpointLabel(path)

	startTime := time.Now()
	defer func() {
		bungieRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	var lastErr *APIError
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			bungieRetriesTotal.WithLabelValues(string(lastErr.Class)).Inc()
			bungieRetryBackoffSeconds.WithLabelValues(string(lastErr.Class)).Observe(delay.Seconds())

			c.logger.Warn().
				Str("endpoint", endpoint).
				Str("error_class", string(lastErr.Class)).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Retrying request after backoff")

			if err := c.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("bungie request %s: %w", endpoint, err)
			}
		}

		if err := c.limiter.Wait(ctx, c.config.RateLimit); err != nil {
			return nil, fmt.Errorf("bungie request %s: %w", endpoint, err)
		}

		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("method", method).
			Int("attempt", attempt+1).
			Msg("Executing Bungie request")

		data, apiErr := c.do(ctx, method, url, body, opts.Header, endpoint)
		if apiErr == nil {
			if attempt > 0 {
				c.logger.Info().
					Str("endpoint", endpoint).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return data, nil
		}

		// The caller gave up; nothing to classify.
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("bungie request %s: %w", endpoint, err)
		}

		apiErr.Attempts = attempt + 1
		lastErr = apiErr
		bungieErrorsTotal.WithLabelValues(string(apiErr.Class)).Inc()

		if !apiErr.Retryable {
			apiErr.Err = ErrTerminal
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", apiErr.StatusCode).
				Int("error_code", apiErr.ErrorCode).
				Str("error_class", string(apiErr.Class)).
				Msg("Bungie request failed")
			return nil, apiErr
		}
	}

	lastErr.Err = ErrRetryExhausted
	bungieRetryExhaustedTotal.WithLabelValues(string(lastErr.Class)).Inc()
	c.logger.Error().
		Str("endpoint", endpoint).
		Str("error_class", string(lastErr.Class)).
		Int("attempts", lastErr.Attempts).
		Msg("Retry attempts exhausted")

	return nil, lastErr
}

// do performs a single attempt under its own deadline.
func (c *Client) do(ctx context.Context, method, url string, body []byte, header http.Header, endpoint string) (json.RawMessage, *APIError) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, url, bodyReader)
	if err != nil {
		apiErr := c.redactor.newError(APIError{
			Class:   ErrorClassClient,
			Message: fmt.Sprintf("create request: %v", err),
		})
		return nil, apiErr
	}

	req.Header.Set(APIKeyHeader, c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	for key, values := range header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		bungieRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, c.transportError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		bungieRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, c.transportError(ctx, attemptCtx, fmt.Errorf("read response body: %w", err))
	}

	bungieRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	// Bungie usually sends an envelope even with error statuses.
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if decodeErr == nil && env.ThrottleSeconds > 0 {
		c.limiter.Throttle(time.Duration(env.ThrottleSeconds) * time.Second)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := APIError{
			StatusCode: resp.StatusCode,
			Class:      classifyStatus(resp.StatusCode),
			Message:    resp.Status,
		}
		if decodeErr == nil && env.ErrorCode != 0 {
			apiErr.ErrorCode = env.ErrorCode
			apiErr.ErrorStatus = env.ErrorStatus
			if env.Message != "" {
				apiErr.Message = resp.Status + ": " + env.Message
			}
		}
		return nil, c.redactor.newError(apiErr)
	}

	if decodeErr != nil {
		// A truncated or garbled body is most likely transient.
		return nil, c.redactor.newError(APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    fmt.Sprintf("decode response envelope: %v", decodeErr),
		})
	}

	if env.ErrorCode != PlatformErrorSuccess {
		class := ErrorClassApplication
		if retryableErrorCodes[env.ErrorCode] {
			class = ErrorClassThrottle
		}
		return nil, c.redactor.newError(APIError{
			StatusCode:  resp.StatusCode,
			ErrorCode:   env.ErrorCode,
			ErrorStatus: env.ErrorStatus,
			Class:       class,
			Message:     env.Message,
		})
	}

	return env.Response, nil
}

// transportError classifies a failure that produced no usable response.
// The transport's error text is flattened and redacted; it is not kept
// as a wrapped cause because it may embed request details.
func (c *Client) transportError(ctx, attemptCtx context.Context, err error) *APIError {
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return c.redactor.newError(APIError{
			Class:   ErrorClassTimeout,
			Message: fmt.Sprintf("request timed out after %v", c.config.Timeout),
		})
	}
	return c.redactor.newError(APIError{
		Class:   ErrorClassNetwork,
		Message: err.Error(),
	})
}

// resolve turns a request path into an absolute URL.
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.config.BaseURL + path
}

// endpointLabel reduces a path to a low-cardinality metric label by
// dropping the query and replacing numeric segments.
func endpointLabel(path string) string {
	if i := strings.Index(path, "://"); i >= 0 {
		if j := strings.Index(path[i+3:], "/"); j >= 0 {
			path = path[i+3+j:]
		}
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if _, err := strconv.ParseInt(seg, 10, 64); err == nil {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// Fetch performs a request and decodes the Response payload into T.
// A null or empty payload yields the zero value.
func Fetch[T any](ctx context.Context, c *Client, path string, opts *RequestOptions) (T, error) {
	var out T

	raw, err := c.Request(ctx, path, opts)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", endpointLabel(path), err)
	}
	return out, nil
}

// Limiter returns the spacer this client dispatches through.
func (c *Client) Limiter() *ratelimit.Spacer {
	return c.limiter
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

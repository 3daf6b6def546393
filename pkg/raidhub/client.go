// Package raidhub provides a client for the RaidHub API, the community
// raid statistics service behind api.raidhub.io.
package raidhub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/destiny-client/pkg/logging"
)

// Upstream endpoint and the credential header.
const (
	DefaultBaseURL = "https://api.raidhub.io"
	DefaultTimeout = 30 * time.Second
	APIKeyHeader   = "x-api-key"
)

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 512

// Config holds the client configuration.
type Config struct {
	// APIKey is sent as x-api-key on every request (REQUIRED).
	APIKey string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration

	UserAgent  string
	HTTPClient *http.Client
}

// Client is the RaidHub API client. Requests are not retried; callers
// that need resilience put a cache in front (see Leaderboards).
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a RaidHub client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     log.With().Str("component", "raidhub-client").Logger(),
	}, nil
}

// envelope is the wrapper most RaidHub responses arrive in.
type envelope struct {
	Success  *bool           `json:"success"`
	Response json.RawMessage `json:"response"`
	Code     string          `json:"code"`
}

// request performs a GET against path and returns the unwrapped payload.
// endpoint is the metric label for the call.
func (c *Client) request(ctx context.Context, endpoint, path string, query url.Values, header http.Header) (json.RawMessage, error) {
	startTime := time.Now()
	defer func() {
		raidhubRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	target := c.config.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, c.newError(endpoint, 0, fmt.Sprintf("create request: %v", err), nil)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyHeader, c.config.APIKey)
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	for key, values := range header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	c.logger.Debug().Str("endpoint", endpoint).Msg("Executing RaidHub request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		raidhubRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, c.transportError(ctx, reqCtx, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		raidhubRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, c.transportError(ctx, reqCtx, endpoint, fmt.Errorf("read response body: %w", err))
	}
	raidhubRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := resp.Status
		if text := strings.TrimSpace(string(raw)); text != "" {
			if len(text) > maxErrorBody {
				text = text[:maxErrorBody] + "..."
			}
			msg += " - " + text
		}
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("RaidHub request failed")
		return nil, c.newError(endpoint, resp.StatusCode, msg, nil)
	}

	return c.unwrap(endpoint, resp.StatusCode, raw)
}

// unwrap returns the envelope's response when the body is an envelope,
// and the body itself otherwise.
func (c *Client) unwrap(endpoint string, status int, raw []byte) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return json.RawMessage(raw), nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, c.newError(endpoint, status, fmt.Sprintf("decode response: %v", err), nil)
	}
	if env.Success != nil && !*env.Success {
		msg := env.Code
		if msg == "" {
			msg = "success=false"
		}
		return nil, c.newError(endpoint, status, msg, ErrUnsuccessful)
	}
	if env.Response != nil {
		return env.Response, nil
	}
	return json.RawMessage(raw), nil
}

// transportError classifies a failure that produced no usable response.
func (c *Client) transportError(ctx, reqCtx context.Context, endpoint string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("raidhub request %s: %w", endpoint, ctx.Err())
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return c.newError(endpoint, 0, fmt.Sprintf("no response after %v", c.config.Timeout), ErrTimeout)
	}
	return c.newError(endpoint, 0, err.Error(), nil)
}

func (c *Client) newError(endpoint string, status int, msg string, cause error) *APIError {
	return &APIError{
		StatusCode: status,
		Endpoint:   endpoint,
		Message:    logging.Redact(msg, c.config.APIKey),
		Err:        cause,
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

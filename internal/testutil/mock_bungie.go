// Package testutil provides testing utilities for the Destiny client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// MockResponse defines the behavior for a mock Bungie endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBungie is a configurable mock of the Bungie platform and content
// hosts for testing. Platform paths live under /Platform, manifest
// content under /common.
type MockBungie struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requestCount  int
	pathCounts    map[string]int
	lastAPIKey    string
	lastRequestAt []time.Time
}

// NewMockBungie creates a new mock Bungie server.
func NewMockBungie() *MockBungie {
	mock := &MockBungie{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastAPIKey = r.Header.Get("X-API-Key")
		mock.lastRequestAt = append(mock.lastRequestAt, time.Now())
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(ErrorEnvelope(7, "ParameterParseFailure", "Unknown endpoint")))
	}))

	return mock
}

// URL returns the mock server root URL (content host).
func (m *MockBungie) URL() string {
	return m.server.URL
}

// PlatformURL returns the base URL to configure as the client's BaseURL.
func (m *MockBungie) PlatformURL() string {
	return m.server.URL + "/Platform"
}

// Close shuts down the mock server.
func (m *MockBungie) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBungie) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastAPIKey = ""
	m.lastRequestAt = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockBungie) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockBungie) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, resp.ServeHTTP)
}

// SetSequence serves the responses in order, repeating the last one once
// the sequence is used up.
func (m *MockBungie) SetSequence(path string, responses ...MockResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()
		resp.ServeHTTP(w, r)
	})
}

// ServeHTTP writes the response, after Delay unless the request is
// cancelled first.
func (resp MockResponse) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// RequestCount returns the number of requests made to the server.
func (m *MockBungie) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made to one path.
func (m *MockBungie) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastAPIKey returns the X-API-Key header of the most recent request.
func (m *MockBungie) LastAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastAPIKey
}

// RequestTimes returns the arrival time of every request, in order.
func (m *MockBungie) RequestTimes() []time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Time(nil), m.lastRequestAt...)
}

// Envelope wraps payload in a successful Bungie response envelope.
func Envelope(payload any) string {
	data, err := json.Marshal(map[string]any{
		"Response":        payload,
		"ErrorCode":       1,
		"ThrottleSeconds": 0,
		"ErrorStatus":     "Success",
		"Message":         "Ok",
		"MessageData":     map[string]string{},
	})
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal envelope: %v", err))
	}
	return string(data)
}

// ErrorEnvelope builds a Bungie error envelope.
func ErrorEnvelope(code int, status, message string) string {
	data, _ := json.Marshal(map[string]any{
		"ErrorCode":       code,
		"ThrottleSeconds": 0,
		"ErrorStatus":     status,
		"Message":         message,
		"MessageData":     map[string]string{},
	})
	return string(data)
}

// NewHealthyResponse creates a 200 OK response wrapping payload.
func NewHealthyResponse(payload any) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       Envelope(payload),
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewThrottleResponse creates a 200 response carrying a throttle-family
// envelope error.
func NewThrottleResponse(throttleSeconds int) MockResponse {
	data, _ := json.Marshal(map[string]any{
		"ErrorCode":       36,
		"ThrottleSeconds": throttleSeconds,
		"ErrorStatus":     "PerEndpointRequestThrottleExceeded",
		"Message":         "Too many requests to this endpoint",
	})
	return MockResponse{StatusCode: http.StatusOK, Body: string(data)}
}

// ManifestFixture describes the manifest served by ServeManifest.
type ManifestFixture struct {
	Version      string
	Items        map[string]any
	Seasons      map[string]any
	Collectibles map[string]any
}

// Content paths used by ServeManifest.
const (
	ItemsContentPath        = "/common/destiny2_content/json/en/DestinyInventoryItemDefinition.json"
	SeasonsContentPath      = "/common/destiny2_content/json/en/DestinySeasonDefinition.json"
	CollectiblesContentPath = "/common/destiny2_content/json/en/DestinyCollectibleDefinition.json"
	ManifestPath            = "/Platform/Destiny2/Manifest/"
)

// ServeManifest serves the manifest endpoint and its three content tables.
func (m *MockBungie) ServeManifest(f ManifestFixture) {
	m.SetResponse(ManifestPath, NewHealthyResponse(map[string]any{
		"version": f.Version,
		"jsonWorldComponentContentPaths": map[string]any{
			"en": map[string]string{
				"DestinyInventoryItemDefinition": ItemsContentPath,
				"DestinySeasonDefinition":        SeasonsContentPath,
				"DestinyCollectibleDefinition":   CollectiblesContentPath,
			},
		},
	}))
	m.SetResponse(ItemsContentPath, rawJSON(f.Items))
	m.SetResponse(SeasonsContentPath, rawJSON(f.Seasons))
	m.SetResponse(CollectiblesContentPath, rawJSON(f.Collectibles))
}

func rawJSON(v map[string]any) MockResponse {
	if v == nil {
		v = map[string]any{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal content: %v", err))
	}
	return MockResponse{StatusCode: http.StatusOK, Body: string(data)}
}

// ItemFixture builds a raw DestinyInventoryItemDefinition entry.
func ItemFixture(hash uint32, name string, itemType, tierType int) map[string]any {
	return map[string]any{
		"hash": hash,
		"displayProperties": map[string]any{
			"name":        name,
			"description": strings.TrimSpace(name + " description"),
			"icon":        fmt.Sprintf("/common/destiny2_content/icons/%d.jpg", hash),
		},
		"itemType":    itemType,
		"itemSubType": 0,
		"inventory": map[string]any{
			"tierType": tierType,
		},
	}
}

// RaidHub responses. MockBungie routes by path only, so the same server
// can stand in for api.raidhub.io.

// NewRaidHubResponse creates a 200 response in RaidHub's
// {minted, success, response} wrapper.
func NewRaidHubResponse(payload any) MockResponse {
	data, err := json.Marshal(map[string]any{
		"minted":   "2025-01-01T00:00:00Z",
		"success":  true,
		"response": payload,
	})
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal raidhub response: %v", err))
	}
	return MockResponse{StatusCode: http.StatusOK, Body: string(data)}
}

// NewRaidHubErrorResponse creates a failed RaidHub response.
func NewRaidHubErrorResponse(status int, code string) MockResponse {
	data, _ := json.Marshal(map[string]any{
		"minted":  "2025-01-01T00:00:00Z",
		"success": false,
		"code":    code,
		"error":   map[string]string{"message": code},
	})
	return MockResponse{StatusCode: status, Body: string(data)}
}

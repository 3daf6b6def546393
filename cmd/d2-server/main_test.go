package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Sternrassler/destiny-client/internal/testutil"
	"github.com/Sternrassler/destiny-client/pkg/cache"
	"github.com/Sternrassler/destiny-client/pkg/client"
	"github.com/Sternrassler/destiny-client/pkg/manifest"
	"github.com/Sternrassler/destiny-client/pkg/raidhub"
)

const testAPIKey = "0123456789abcdef0123456789abcdef"

// fakeBungie serves canned payloads and counts upstream calls.
type fakeBungie struct {
	mu      sync.Mutex
	calls   int
	pgcr    json.RawMessage
	members []client.GroupMember
	err     error
}

func (f *fakeBungie) GetPostGameCarnageReport(context.Context, string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.pgcr, f.err
}

func (f *fakeBungie) GetAllGroupMembers(context.Context, string) ([]client.GroupMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.members, f.err
}

func (f *fakeBungie) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newReadyManifest(t *testing.T) *manifest.Cache {
	t.Helper()

	mock := testutil.NewMockBungie()
	t.Cleanup(mock.Close)
	mock.ServeManifest(testutil.ManifestFixture{
		Version: "v1",
		Items: map[string]any{
			"1001": testutil.ItemFixture(1001, "Fatebringer", 3, 5),
			"2001": testutil.ItemFixture(2001, "Gjallarhorn", 3, 6),
		},
	})

	cfg := client.DefaultConfig(testAPIKey)
	cfg.BaseURL = mock.PlatformURL()
	cfg.RateLimit = client.MinRateLimit
	cfg.MaxRetries = 0
	bungie, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	mcfg := manifest.DefaultConfig()
	mcfg.Dir = t.TempDir()
	mcfg.ContentBaseURL = mock.URL()
	items, err := manifest.New(bungie, mcfg)
	if err != nil {
		t.Fatalf("Failed to create manifest cache: %v", err)
	}
	if err := items.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return items
}

func newTestServer(t *testing.T, items *manifest.Cache, bungie *fakeBungie) http.Handler {
	t.Helper()
	return newTestServerWithRaidHub(t, items, bungie, nil)
}

// newTestServerWithRaidHub serves leaderboards through raidHubClient, or
// from cache only when it is nil.
func newTestServerWithRaidHub(t *testing.T, items *manifest.Cache, bungie *fakeBungie, raidHubClient *raidhub.Client) http.Handler {
	t.Helper()
	store, err := cache.NewDiskStore(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("Failed to create disk store: %v", err)
	}
	payloads := cache.NewManager(store)
	leaderboards := raidhub.NewLeaderboards(raidHubClient, payloads, time.Hour)
	return newServer(bungie, items, payloads, leaderboards).routes()
}

func get(t *testing.T, h http.Handler, target string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		h := newTestServer(t, newReadyManifest(t), &fakeBungie{})
		resp, body := get(t, h, "/health")

		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
		var status manifest.Status
		if err := json.Unmarshal([]byte(body), &status); err != nil {
			t.Fatalf("Failed to decode status: %v", err)
		}
		if status.Version != "v1" || status.Items != 2 {
			t.Errorf("Expected version v1 with 2 items, got %q with %d", status.Version, status.Items)
		}
	})

	t.Run("not_ready", func(t *testing.T) {
		items, err := manifest.New(&fakeManifestSource{}, manifest.Config{Dir: t.TempDir(), TTL: manifest.DefaultTTL})
		if err != nil {
			t.Fatalf("Failed to create manifest cache: %v", err)
		}
		h := newTestServer(t, items, &fakeBungie{})

		resp, _ := get(t, h, "/health")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", resp.StatusCode)
		}

		resp, _ = get(t, h, "/items/search?q=fate")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected search status 503, got %d", resp.StatusCode)
		}
	})
}

// fakeManifestSource is never called; the cache it backs stays uninitialized.
type fakeManifestSource struct{}

func (fakeManifestSource) GetManifest(context.Context) (*client.Manifest, error) {
	return nil, errors.New("unreachable")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, newReadyManifest(t), &fakeBungie{})
	resp, body := get(t, h, "/metrics")

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(body, "bungie_requests_total") {
		t.Error("Expected metrics output to contain bungie_requests_total")
	}
}

func TestSearchEndpoint(t *testing.T) {
	h := newTestServer(t, newReadyManifest(t), &fakeBungie{})

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantNames  []string
	}{
		{"match", "/items/search?q=FATE", http.StatusOK, []string{"Fatebringer"}},
		{"no_match", "/items/search?q=ace", http.StatusOK, []string{}},
		{"empty_query", "/items/search?q=%20", http.StatusBadRequest, nil},
		{"bad_limit", "/items/search?q=fate&limit=abc", http.StatusBadRequest, nil},
		{"limit_too_large", "/items/search?q=fate&limit=1000", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, h, tt.target)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d (%s)", tt.wantStatus, resp.StatusCode, body)
			}
			if tt.wantNames == nil {
				return
			}

			var results []manifest.SearchResult
			if err := json.Unmarshal([]byte(body), &results); err != nil {
				t.Fatalf("Failed to decode results: %v", err)
			}
			if len(results) != len(tt.wantNames) {
				t.Fatalf("Expected %d results, got %d", len(tt.wantNames), len(results))
			}
			for i, name := range tt.wantNames {
				if results[i].Name != name {
					t.Errorf("Result %d: expected %q, got %q", i, name, results[i].Name)
				}
			}
		})
	}
}

func TestItemEndpoint(t *testing.T) {
	h := newTestServer(t, newReadyManifest(t), &fakeBungie{})

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"found", "/items/2001", http.StatusOK},
		{"missing", "/items/9999", http.StatusNotFound},
		{"not_numeric", "/items/abc", http.StatusBadRequest},
		{"overflow", "/items/4294967296", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, h, tt.target)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d (%s)", tt.wantStatus, resp.StatusCode, body)
			}
			if tt.wantStatus == http.StatusOK && !strings.Contains(body, "Gjallarhorn") {
				t.Errorf("Expected item body, got %s", body)
			}
		})
	}
}

func TestPGCREndpoint(t *testing.T) {
	t.Run("cached_after_first_fetch", func(t *testing.T) {
		bungie := &fakeBungie{pgcr: json.RawMessage(`{"activityDetails":{"mode":4}}`)}
		h := newTestServer(t, newReadyManifest(t), bungie)

		for i := 0; i < 2; i++ {
			resp, body := get(t, h, "/pgcr/14789523652")
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", resp.StatusCode)
			}
			if body != `{"activityDetails":{"mode":4}}` {
				t.Errorf("Unexpected body: %s", body)
			}
			if resp.Header.Get("X-Cache-Fetched-At") == "" {
				t.Error("Expected X-Cache-Fetched-At header")
			}
		}

		if got := bungie.callCount(); got != 1 {
			t.Errorf("Expected 1 upstream call, got %d", got)
		}
	})

	tests := []struct {
		name       string
		target     string
		err        error
		wantStatus int
	}{
		{"not_numeric", "/pgcr/abc", nil, http.StatusBadRequest},
		{
			name:   "upstream_not_found",
			target: "/pgcr/1",
			err: &client.APIError{
				StatusCode: http.StatusNotFound,
				Class:      client.ErrorClassClient,
				Message:    "not found",
				Err:        client.ErrTerminal,
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "upstream_exhausted",
			target: "/pgcr/2",
			err: &client.APIError{
				StatusCode: http.StatusServiceUnavailable,
				Class:      client.ErrorClassServer,
				Message:    "maintenance",
				Err:        client.ErrRetryExhausted,
				Attempts:   4,
			},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, newReadyManifest(t), &fakeBungie{err: tt.err})
			resp, body := get(t, h, tt.target)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d (%s)", tt.wantStatus, resp.StatusCode, body)
			}
		})
	}
}

func TestClanMembersEndpoint(t *testing.T) {
	bungie := &fakeBungie{members: []client.GroupMember{
		{MemberType: 5, DestinyUserInfo: client.UserInfoCard{MembershipID: "1", DisplayName: "Founder"}},
		{MemberType: 2, DestinyUserInfo: client.UserInfoCard{MembershipID: "2", DisplayName: "Member"}},
	}}
	h := newTestServer(t, newReadyManifest(t), bungie)

	resp, body := get(t, h, "/clans/4242/members")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", resp.StatusCode, body)
	}

	var members []client.GroupMember
	if err := json.Unmarshal([]byte(body), &members); err != nil {
		t.Fatalf("Failed to decode members: %v", err)
	}
	if len(members) != 2 || members[0].DestinyUserInfo.DisplayName != "Founder" {
		t.Errorf("Unexpected members: %+v", members)
	}

	get(t, h, "/clans/4242/members")
	if got := bungie.callCount(); got != 1 {
		t.Errorf("Expected 1 upstream call, got %d", got)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	mock := testutil.NewMockBungie()
	t.Cleanup(mock.Close)
	mock.SetResponse("/leaderboard/team/contest/salvationsedge",
		testutil.NewRaidHubResponse(map[string]any{"entries": []any{"team-1"}}))
	mock.SetResponse("/leaderboard/individual/global/missing",
		testutil.NewRaidHubErrorResponse(http.StatusNotFound, "LeaderboardNotFoundError"))
	mock.SetResponse("/leaderboard/clan",
		testutil.MockResponse{StatusCode: http.StatusInternalServerError, Body: "down"})

	raidHubClient, err := raidhub.New(raidhub.Config{APIKey: "raidhubkey0123456789", BaseURL: mock.URL()})
	if err != nil {
		t.Fatalf("Failed to create raidhub client: %v", err)
	}
	h := newTestServerWithRaidHub(t, newReadyManifest(t), &fakeBungie{}, raidHubClient)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"contest", "/leaderboards/contest?raid=salvationsedge", http.StatusOK, `{"entries":["team-1"]}`},
		{"missing raid", "/leaderboards/contest", http.StatusBadRequest, ""},
		{"unknown kind", "/leaderboards/weekly", http.StatusBadRequest, ""},
		{"bad page", "/leaderboards/clan?page=zero", http.StatusBadRequest, ""},
		{"count too large", "/leaderboards/clan?count=1000", http.StatusBadRequest, ""},
		{"upstream not found", "/leaderboards/global?category=missing", http.StatusNotFound, ""},
		{"upstream down", "/leaderboards/clan", http.StatusBadGateway, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, h, tt.target)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d (%s)", tt.wantStatus, resp.StatusCode, body)
			}
			if tt.wantBody != "" && body != tt.wantBody {
				t.Errorf("Expected body %s, got %s", tt.wantBody, body)
			}
			if tt.wantStatus == http.StatusOK && resp.Header.Get("X-Cache-Fetched-At") == "" {
				t.Error("Expected X-Cache-Fetched-At header")
			}
		})
	}

	get(t, h, "/leaderboards/contest?raid=salvationsedge")
	if got := mock.PathCount("/leaderboard/team/contest/salvationsedge"); got != 1 {
		t.Errorf("Expected 1 upstream request, got %d", got)
	}
}

func TestLeaderboardEndpoint_WithoutRaidHubKey(t *testing.T) {
	h := newTestServer(t, newReadyManifest(t), &fakeBungie{})

	resp, body := get(t, h, "/leaderboards/clan")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d (%s)", resp.StatusCode, body)
	}
}

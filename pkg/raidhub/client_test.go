package raidhub

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/destiny-client/internal/testutil"
)

const testAPIKey = "raidhubkey0123456789abcdef"

func newTestClient(t *testing.T, mock *testutil.MockBungie) *Client {
	t.Helper()
	c, err := New(Config{APIKey: testAPIKey, BaseURL: mock.URL(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}

	c, err := New(Config{APIKey: testAPIKey})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.config.BaseURL != DefaultBaseURL {
		t.Errorf("Expected base URL %s, got %s", DefaultBaseURL, c.config.BaseURL)
	}
	if c.config.Timeout != DefaultTimeout {
		t.Errorf("Expected timeout %v, got %v", DefaultTimeout, c.config.Timeout)
	}
}

func TestRequest_UnwrapsEnvelope(t *testing.T) {
	mock := testutil.NewMockBungie()
	defer mock.Close()
	c := newTestClient(t, mock)

	mock.SetResponse("/status", testutil.NewRaidHubResponse(map[string]any{"atlas": "ok"}))
	mock.SetResponse("/manifest", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"activityDefinitions":{}}`,
	})

	tests := []struct {
		name string
		call func(context.Context) ([]byte, error)
		want string
	}{
		{"envelope", func(ctx context.Context) ([]byte, error) { return c.GetStatus(ctx) }, `{"atlas":"ok"}`},
		{"bare body", func(ctx context.Context) ([]byte, error) { return c.GetManifest(ctx) }, `{"activityDefinitions":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call(context.Background())
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRequest_SendsAPIKey(t *testing.T) {
	mock := testutil.NewMockBungie()
	defer mock.Close()
	c := newTestClient(t, mock)

	var contentType string
	mock.SetHandler("/status", func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		testutil.NewRaidHubResponse(nil).ServeHTTP(w, r)
	})

	if _, err := c.GetStatus(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := mock.LastAPIKey(); got != testAPIKey {
		t.Errorf("Expected x-api-key %q, got %q", testAPIKey, got)
	}
	if contentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", contentType)
	}
}

func TestRequest_Errors(t *testing.T) {
	tests := []struct {
		name       string
		response   testutil.MockResponse
		wantStatus int
		wantErr    error
		wantText   string
	}{
		{
			name:       "server error",
			response:   testutil.MockResponse{StatusCode: http.StatusInternalServerError, Body: "upstream exploded"},
			wantStatus: http.StatusInternalServerError,
			wantText:   "upstream exploded",
		},
		{
			name:       "not found",
			response:   testutil.NewRaidHubErrorResponse(http.StatusNotFound, "InstanceNotFoundError"),
			wantStatus: http.StatusNotFound,
			wantText:   "InstanceNotFoundError",
		},
		{
			name:       "unsuccessful envelope",
			response:   testutil.NewRaidHubErrorResponse(http.StatusOK, "PlayerPrivateProfileError"),
			wantStatus: http.StatusOK,
			wantErr:    ErrUnsuccessful,
			wantText:   "PlayerPrivateProfileError",
		},
		{
			name: "key echoed in body",
			response: testutil.MockResponse{
				StatusCode: http.StatusUnauthorized,
				Body:       `{"error":"bad key ` + testAPIKey + `"}`,
			},
			wantStatus: http.StatusUnauthorized,
			wantText:   "bad key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockBungie()
			defer mock.Close()
			c := newTestClient(t, mock)
			mock.SetResponse("/instance/42", tt.response)

			_, err := c.GetInstance(context.Background(), "42")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected *APIError, got %T: %v", err, err)
			}
			if apiErr.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, apiErr.StatusCode)
			}
			if StatusCode(err) != tt.wantStatus {
				t.Errorf("StatusCode() = %d, want %d", StatusCode(err), tt.wantStatus)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected errors.Is(%v), got %v", tt.wantErr, err)
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("Expected error to contain %q, got %q", tt.wantText, err.Error())
			}
			if strings.Contains(err.Error(), testAPIKey) {
				t.Errorf("Error leaks the API key: %q", err.Error())
			}
		})
	}
}

func TestRequest_Timeout(t *testing.T) {
	mock := testutil.NewMockBungie()
	defer mock.Close()

	c, err := New(Config{APIKey: testAPIKey, BaseURL: mock.URL(), Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	resp := testutil.NewRaidHubResponse(nil)
	resp.Delay = 500 * time.Millisecond
	mock.SetResponse("/status", resp)

	_, err = c.GetStatus(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if StatusCode(err) != 0 {
		t.Errorf("Expected no status on timeout, got %d", StatusCode(err))
	}
}

func TestRequest_CallerCancel(t *testing.T) {
	mock := testutil.NewMockBungie()
	defer mock.Close()
	c := newTestClient(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetStatus(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("Caller cancellation must not be reported as a timeout")
	}
}

func TestEndpoints_PathsAndQueries(t *testing.T) {
	mock := testutil.NewMockBungie()
	defer mock.Close()
	c := newTestClient(t, mock)

	tests := []struct {
		name      string
		path      string
		call      func(context.Context) error
		wantQuery url.Values
	}{
		{
			name: "player search",
			path: "/player/search",
			call: func(ctx context.Context) error {
				_, err := c.SearchPlayers(ctx, "Datto", AllMembershipTypes, 0)
				return err
			},
			wantQuery: url.Values{"query": {"Datto"}, "membershipType": {"-1"}, "count": {"20"}},
		},
		{
			name: "player basic",
			path: "/player/4611686018467284386/basic",
			call: func(ctx context.Context) error {
				_, err := c.GetPlayerBasic(ctx, "4611686018467284386")
				return err
			},
		},
		{
			name: "player instances",
			path: "/player/4611686018467284386/instances",
			call: func(ctx context.Context) error {
				_, err := c.GetPlayerInstances(ctx, "4611686018467284386", url.Values{"completed": {"true"}})
				return err
			},
			wantQuery: url.Values{"completed": {"true"}},
		},
		{
			name: "pgcr",
			path: "/pgcr/14789523652",
			call: func(ctx context.Context) error {
				_, err := c.GetPGCR(ctx, "14789523652")
				return err
			},
		},
		{
			name: "global leaderboard",
			path: "/leaderboard/individual/global/clears",
			call: func(ctx context.Context) error {
				_, err := c.GetGlobalLeaderboard(ctx, "clears", 2, 10)
				return err
			},
			wantQuery: url.Values{"page": {"2"}, "count": {"10"}},
		},
		{
			name: "raid leaderboard",
			path: "/leaderboard/individual/raid/vowofthedisciple/sherpas",
			call: func(ctx context.Context) error {
				_, err := c.GetRaidLeaderboard(ctx, "vowofthedisciple", "sherpas", 0, 0)
				return err
			},
			wantQuery: url.Values{"page": {"1"}, "count": {"50"}},
		},
		{
			name: "contest leaderboard",
			path: "/leaderboard/team/contest/salvationsedge",
			call: func(ctx context.Context) error {
				_, err := c.GetContestLeaderboard(ctx, "salvationsedge", 1, 25)
				return err
			},
			wantQuery: url.Values{"page": {"1"}, "count": {"25"}},
		},
		{
			name: "team first leaderboard",
			path: "/leaderboard/team/first/crotasend/master",
			call: func(ctx context.Context) error {
				_, err := c.GetTeamFirstLeaderboard(ctx, "crotasend", "master", 1, 50)
				return err
			},
			wantQuery: url.Values{"page": {"1"}, "count": {"50"}},
		},
		{
			name: "clan leaderboard",
			path: "/leaderboard/clan",
			call: func(ctx context.Context) error {
				_, err := c.GetClanLeaderboard(ctx, 0, 0, "")
				return err
			},
			wantQuery: url.Values{"page": {"1"}, "count": {"50"}, "column": {DefaultClanColumn}},
		},
		{
			name: "weapons rolling week",
			path: "/metrics/weapons/rolling-week",
			call: func(ctx context.Context) error {
				_, err := c.GetWeaponsRollingWeek(ctx, "", 0)
				return err
			},
			wantQuery: url.Values{"sort": {"usage"}, "count": {"25"}},
		},
		{
			name: "population rolling day",
			path: "/metrics/population/rolling-day",
			call: func(ctx context.Context) error {
				_, err := c.GetPopulationRollingDay(ctx)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery url.Values
			mock.SetHandler(tt.path, func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.Query()
				testutil.NewRaidHubResponse([]any{}).ServeHTTP(w, r)
			})

			if err := tt.call(context.Background()); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if mock.PathCount(tt.path) != 1 {
				t.Fatalf("Expected one request to %s, got %d", tt.path, mock.PathCount(tt.path))
			}
			for key, want := range tt.wantQuery {
				if got := gotQuery.Get(key); got != want[0] {
					t.Errorf("Query %s: expected %q, got %q", key, want[0], got)
				}
			}
		})
	}
}

func TestGetPlayerHistory_BearerAndCursor(t *testing.T) {
	mock := testutil.NewMockBungie()
	defer mock.Close()
	c := newTestClient(t, mock)

	const path = "/player/4611686018467284386/history"
	var auth, cursor string
	mock.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		cursor = r.URL.Query().Get("cursor")
		testutil.NewRaidHubResponse(map[string]any{"activities": []any{}}).ServeHTTP(w, r)
	})

	if _, err := c.GetPlayerHistory(context.Background(), "4611686018467284386", 0, "", ""); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if auth != "" || cursor != "" {
		t.Errorf("Expected no Authorization or cursor on first page, got %q and %q", auth, cursor)
	}

	if _, err := c.GetPlayerHistory(context.Background(), "4611686018467284386", 0, "abc", "token123"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if auth != "Bearer token123" {
		t.Errorf("Expected bearer token, got %q", auth)
	}
	if cursor != "abc" {
		t.Errorf("Expected cursor abc, got %q", cursor)
	}
}

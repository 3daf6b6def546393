package raidhub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/destiny-client/pkg/cache"
)

// DefaultLeaderboardMaxAge is how long a cached leaderboard page is served
// without asking RaidHub again.
const DefaultLeaderboardMaxAge = 15 * time.Minute

// MaxLeaderboardCount is the largest page RaidHub serves.
const MaxLeaderboardCount = 100

var (
	// ErrInvalidQuery is returned for a leaderboard query missing a
	// required parameter.
	ErrInvalidQuery = errors.New("invalid leaderboard query")

	// ErrNotConfigured is returned when no API key is configured and the
	// requested page has never been cached.
	ErrNotConfigured = errors.New("raidhub client not configured")
)

// LeaderboardKind selects one of RaidHub's leaderboards.
type LeaderboardKind string

const (
	LeaderboardGlobal    LeaderboardKind = "global"
	LeaderboardRaid      LeaderboardKind = "raid"
	LeaderboardContest   LeaderboardKind = "contest"
	LeaderboardTeamFirst LeaderboardKind = "team_first"
	LeaderboardClan      LeaderboardKind = "clan"
)

// LeaderboardQuery identifies one leaderboard page. Which of the string
// fields matter depends on Kind.
type LeaderboardQuery struct {
	Kind     LeaderboardKind
	Raid     string // raid, contest
	Category string // global, raid
	Activity string // team_first
	Version  string // team_first
	Column   string // clan
	Page     int
	Count    int
}

// Normalize fills in paging and column defaults.
func (q LeaderboardQuery) Normalize() LeaderboardQuery {
	q.Page = orDefault(q.Page, DefaultPage)
	q.Count = orDefault(q.Count, DefaultCount)
	if q.Kind == LeaderboardClan && q.Column == "" {
		q.Column = DefaultClanColumn
	}
	return q
}

// Validate reports missing parameters. Every error wraps ErrInvalidQuery.
func (q LeaderboardQuery) Validate() error {
	var missing string
	switch q.Kind {
	case LeaderboardGlobal:
		if q.Category == "" {
			missing = "category"
		}
	case LeaderboardRaid:
		switch {
		case q.Raid == "":
			missing = "raid"
		case q.Category == "":
			missing = "category"
		}
	case LeaderboardContest:
		if q.Raid == "" {
			missing = "raid"
		}
	case LeaderboardTeamFirst:
		switch {
		case q.Activity == "":
			missing = "activity"
		case q.Version == "":
			missing = "version"
		}
	case LeaderboardClan:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, q.Kind)
	}
	if missing != "" {
		return fmt.Errorf("%w: %s leaderboard requires %s", ErrInvalidQuery, q.Kind, missing)
	}
	if q.Page < 0 || q.Count < 0 || q.Count > MaxLeaderboardCount {
		return fmt.Errorf("%w: page must be positive and count between 1 and %d", ErrInvalidQuery, MaxLeaderboardCount)
	}
	return nil
}

// CacheKey returns the payload cache key for the normalized query.
func (q LeaderboardQuery) CacheKey() string {
	q = q.Normalize()
	params := map[string]string{}
	for name, v := range map[string]string{
		"raid":     q.Raid,
		"category": q.Category,
		"activity": q.Activity,
		"version":  q.Version,
		"column":   q.Column,
	} {
		if v != "" {
			params[name] = v
		}
	}
	return cache.CacheKey{
		Endpoint:   "raidhub/" + string(q.Kind),
		PathParams: params,
		QueryParams: url.Values{
			"page":  {strconv.Itoa(q.Page)},
			"count": {strconv.Itoa(q.Count)},
		},
	}.String()
}

// fetchLeaderboard asks RaidHub for the page q names.
func (c *Client) fetchLeaderboard(ctx context.Context, q LeaderboardQuery) (json.RawMessage, error) {
	switch q.Kind {
	case LeaderboardGlobal:
		return c.GetGlobalLeaderboard(ctx, q.Category, q.Page, q.Count)
	case LeaderboardRaid:
		return c.GetRaidLeaderboard(ctx, q.Raid, q.Category, q.Page, q.Count)
	case LeaderboardContest:
		return c.GetContestLeaderboard(ctx, q.Raid, q.Page, q.Count)
	case LeaderboardTeamFirst:
		return c.GetTeamFirstLeaderboard(ctx, q.Activity, q.Version, q.Page, q.Count)
	case LeaderboardClan:
		return c.GetClanLeaderboard(ctx, q.Page, q.Count, q.Column)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, q.Kind)
	}
}

// Leaderboards serves leaderboard pages through the payload cache.
// Without a client it serves whatever was cached earlier.
type Leaderboards struct {
	client *Client
	cache  *cache.Manager
	maxAge time.Duration
	logger zerolog.Logger
}

// NewLeaderboards creates a cached leaderboard source. client may be nil.
// A non-positive maxAge selects DefaultLeaderboardMaxAge.
func NewLeaderboards(client *Client, payloads *cache.Manager, maxAge time.Duration) *Leaderboards {
	if payloads == nil {
		panic("raidhub: payload cache cannot be nil")
	}
	if maxAge <= 0 {
		maxAge = DefaultLeaderboardMaxAge
	}
	return &Leaderboards{
		client: client,
		cache:  payloads,
		maxAge: maxAge,
		logger: log.With().Str("component", "raidhub-leaderboards").Logger(),
	}
}

// LeaderboardPage is a leaderboard payload and where it came from.
type LeaderboardPage struct {
	*cache.Entry

	// Stale is set when RaidHub failed and an older cached copy was served.
	Stale bool
}

// Get returns the page q names. A fresh cached copy is served as is;
// otherwise RaidHub is asked, and if that fails any cached copy is
// returned marked stale.
func (l *Leaderboards) Get(ctx context.Context, q LeaderboardQuery) (*LeaderboardPage, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q = q.Normalize()
	key := q.CacheKey()

	if l.client == nil {
		entry, err := l.cache.Get(ctx, key)
		if err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				return nil, ErrNotConfigured
			}
			return nil, err
		}
		raidhubLeaderboardRequestsTotal.WithLabelValues("cache").Inc()
		return &LeaderboardPage{Entry: entry}, nil
	}

	fetched := false
	entry, err := l.cache.GetOrFetch(ctx, key, l.maxAge, func(ctx context.Context) (json.RawMessage, error) {
		fetched = true
		return l.client.fetchLeaderboard(ctx, q)
	})
	if err == nil {
		source := "cache"
		if fetched {
			source = "live"
		}
		raidhubLeaderboardRequestsTotal.WithLabelValues(source).Inc()
		return &LeaderboardPage{Entry: entry}, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	cached, cacheErr := l.cache.Get(ctx, key)
	if cacheErr != nil {
		return nil, err
	}
	l.logger.Warn().
		Err(err).
		Str("key", key).
		Time("fetched_at", cached.FetchedAt).
		Msg("Serving stale leaderboard")
	raidhubLeaderboardRequestsTotal.WithLabelValues("stale").Inc()
	return &LeaderboardPage{Entry: cached, Stale: true}, nil
}

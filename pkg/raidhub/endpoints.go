package raidhub

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"
)

// Paging defaults applied when a caller passes zero.
const (
	DefaultPage         = 1
	DefaultCount        = 50
	DefaultSearchCount  = 20
	DefaultHistoryCount = 200
	DefaultWeaponsCount = 25
	DefaultClanColumn   = "weighted_contest_score"
	DefaultWeaponsSort  = "usage"
	AllMembershipTypes  = -1
)

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func pageQuery(page, count int) url.Values {
	return url.Values{
		"page":  {strconv.Itoa(orDefault(page, DefaultPage))},
		"count": {strconv.Itoa(orDefault(count, DefaultCount))},
	}
}

func seg(s string) string {
	return "/" + url.PathEscape(s)
}

// GetManifest returns RaidHub's activity definitions.
func (c *Client) GetManifest(ctx context.Context) (json.RawMessage, error) {
	return c.request(ctx, "/manifest", "/manifest", nil, nil)
}

// GetStatus returns the RaidHub crawler status.
func (c *Client) GetStatus(ctx context.Context) (json.RawMessage, error) {
	return c.request(ctx, "/status", "/status", nil, nil)
}

// SearchPlayers looks players up by name. membershipType -1 searches
// every platform.
func (c *Client) SearchPlayers(ctx context.Context, query string, membershipType, count int) (json.RawMessage, error) {
	q := url.Values{
		"query":          {query},
		"count":          {strconv.Itoa(orDefault(count, DefaultSearchCount))},
		"membershipType": {strconv.Itoa(membershipType)},
	}
	return c.request(ctx, "/player/search", "/player/search", q, nil)
}

// GetPlayerBasic returns a player's profile summary.
func (c *Client) GetPlayerBasic(ctx context.Context, membershipID string) (json.RawMessage, error) {
	return c.request(ctx, "/player/{id}/basic", "/player"+seg(membershipID)+"/basic", nil, nil)
}

// GetPlayerHistory returns one page of a player's activity history.
// Private profiles need a bearer token; cursor is empty for the first page.
func (c *Client) GetPlayerHistory(ctx context.Context, membershipID string, count int, cursor, bearerToken string) (json.RawMessage, error) {
	q := url.Values{"count": {strconv.Itoa(orDefault(count, DefaultHistoryCount))}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var header http.Header
	if bearerToken != "" {
		header = http.Header{"Authorization": {"Bearer " + bearerToken}}
	}
	return c.request(ctx, "/player/{id}/history", "/player"+seg(membershipID)+"/history", q, header)
}

// GetPlayerInstances returns a player's activity instances, filtered by
// whatever query parameters RaidHub accepts (activityId, completed, ...).
func (c *Client) GetPlayerInstances(ctx context.Context, membershipID string, filter url.Values) (json.RawMessage, error) {
	return c.request(ctx, "/player/{id}/instances", "/player"+seg(membershipID)+"/instances", filter, nil)
}

// GetInstance returns RaidHub's summary of one activity instance.
func (c *Client) GetInstance(ctx context.Context, instanceID string) (json.RawMessage, error) {
	return c.request(ctx, "/instance/{id}", "/instance"+seg(instanceID), nil, nil)
}

// GetPGCR returns RaidHub's copy of a post-game carnage report.
func (c *Client) GetPGCR(ctx context.Context, instanceID string) (json.RawMessage, error) {
	return c.request(ctx, "/pgcr/{id}", "/pgcr"+seg(instanceID), nil, nil)
}

// GetGlobalLeaderboard returns an individual leaderboard across all raids.
func (c *Client) GetGlobalLeaderboard(ctx context.Context, category string, page, count int) (json.RawMessage, error) {
	return c.request(ctx, "/leaderboard/individual/global",
		"/leaderboard/individual/global"+seg(category), pageQuery(page, count), nil)
}

// GetRaidLeaderboard returns an individual leaderboard for one raid.
func (c *Client) GetRaidLeaderboard(ctx context.Context, raid, category string, page, count int) (json.RawMessage, error) {
	return c.request(ctx, "/leaderboard/individual/raid",
		"/leaderboard/individual/raid"+seg(raid)+seg(category), pageQuery(page, count), nil)
}

// GetContestLeaderboard returns the contest-mode team leaderboard for a raid.
func (c *Client) GetContestLeaderboard(ctx context.Context, raid string, page, count int) (json.RawMessage, error) {
	return c.request(ctx, "/leaderboard/team/contest",
		"/leaderboard/team/contest"+seg(raid), pageQuery(page, count), nil)
}

// GetTeamFirstLeaderboard returns the world-first race for an activity version.
func (c *Client) GetTeamFirstLeaderboard(ctx context.Context, activity, version string, page, count int) (json.RawMessage, error) {
	return c.request(ctx, "/leaderboard/team/first",
		"/leaderboard/team/first"+seg(activity)+seg(version), pageQuery(page, count), nil)
}

// GetClanLeaderboard ranks clans by column.
func (c *Client) GetClanLeaderboard(ctx context.Context, page, count int, column string) (json.RawMessage, error) {
	if column == "" {
		column = DefaultClanColumn
	}
	q := pageQuery(page, count)
	q.Set("column", column)
	return c.request(ctx, "/leaderboard/clan", "/leaderboard/clan", q, nil)
}

// GetWeaponsRollingWeek returns weapon usage over the past week.
func (c *Client) GetWeaponsRollingWeek(ctx context.Context, sort string, count int) (json.RawMessage, error) {
	if sort == "" {
		sort = DefaultWeaponsSort
	}
	q := url.Values{
		"sort":  {sort},
		"count": {strconv.Itoa(orDefault(count, DefaultWeaponsCount))},
	}
	return c.request(ctx, "/metrics/weapons/rolling-week", "/metrics/weapons/rolling-week", q, nil)
}

// GetPopulationRollingDay returns raid population over the past day.
func (c *Client) GetPopulationRollingDay(ctx context.Context) (json.RawMessage, error) {
	return c.request(ctx, "/metrics/population/rolling-day", "/metrics/population/rolling-day", nil, nil)
}

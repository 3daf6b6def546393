package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/Sternrassler/destiny-client/pkg/pagination"
)

// ComponentType selects profile components (DestinyComponentType).
type ComponentType int

const (
	ComponentProfiles              ComponentType = 100
	ComponentProfileInventories    ComponentType = 102
	ComponentCharacters            ComponentType = 200
	ComponentCharacterInventories  ComponentType = 201
	ComponentCharacterProgressions ComponentType = 202
	ComponentCharacterEquipment    ComponentType = 205
	ComponentRecords               ComponentType = 900
)

// MembershipTypeAll matches every platform in player searches.
const MembershipTypeAll = -1

// Manifest describes the current manifest version and where its JSON
// content lives.
type Manifest struct {
	Version string `json:"version"`

	// JSONWorldComponentContentPaths maps locale -> definition name -> path
	// relative to https://www.bungie.net.
	JSONWorldComponentContentPaths map[string]map[string]string `json:"jsonWorldComponentContentPaths"`
}

// ContentPath returns the content path of one definition table for a locale.
func (m *Manifest) ContentPath(locale, definition string) (string, bool) {
	paths, ok := m.JSONWorldComponentContentPaths[locale]
	if !ok {
		return "", false
	}
	path, ok := paths[definition]
	return path, ok && path != ""
}

// UserInfoCard identifies a Destiny membership.
type UserInfoCard struct {
	MembershipID                string `json:"membershipId"`
	MembershipType              int    `json:"membershipType"`
	DisplayName                 string `json:"displayName"`
	BungieGlobalDisplayName     string `json:"bungieGlobalDisplayName"`
	BungieGlobalDisplayNameCode int    `json:"bungieGlobalDisplayNameCode"`
}

// SearchResultPage is the paging wrapper used by group endpoints.
type SearchResultPage[T any] struct {
	Results      []T  `json:"results"`
	TotalResults int  `json:"totalResults"`
	HasMore      bool `json:"hasMore"`
}

// GroupMember is one entry of a clan roster.
type GroupMember struct {
	MemberType      int          `json:"memberType"`
	IsOnline        bool         `json:"isOnline"`
	JoinDate        string       `json:"joinDate"`
	DestinyUserInfo UserInfoCard `json:"destinyUserInfo"`
}

// GetManifest returns the current manifest version and content paths.
func (c *Client) GetManifest(ctx context.Context) (*Manifest, error) {
	m, err := Fetch[*Manifest](ctx, c, "/Destiny2/Manifest/", nil)
	if err != nil {
		return nil, err
	}
	if m == nil || m.Version == "" {
		return nil, fmt.Errorf("invalid manifest response: missing version")
	}
	return m, nil
}

// SearchPlayerByBungieName resolves an exact Bungie name (name#code).
func (c *Client) SearchPlayerByBungieName(ctx context.Context, displayName string, displayNameCode, membershipType int) ([]UserInfoCard, error) {
	return Fetch[[]UserInfoCard](ctx, c,
		fmt.Sprintf("/Destiny2/SearchDestinyPlayerByBungieName/%d/", membershipType),
		&RequestOptions{
			Method: http.MethodPost,
			Body: map[string]any{
				"displayName":     displayName,
				"displayNameCode": displayNameCode,
			},
		})
}

// SearchPlayerGlobalName searches Bungie names by prefix.
func (c *Client) SearchPlayerGlobalName(ctx context.Context, prefix string, page int) (json.RawMessage, error) {
	return c.Request(ctx, fmt.Sprintf("/User/Search/GlobalName/%d/", page), &RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"displayNamePrefix": prefix},
	})
}

// GetProfile returns the requested components of a Destiny profile.
func (c *Client) GetProfile(ctx context.Context, membershipType int, membershipID string, components ...ComponentType) (json.RawMessage, error) {
	if len(components) == 0 {
		components = []ComponentType{ComponentProfiles, ComponentCharacters, ComponentCharacterEquipment}
	}
	return c.Request(ctx, fmt.Sprintf("/Destiny2/%d/Profile/%s/?components=%s",
		membershipType, url.PathEscape(membershipID), joinComponents(components)), nil)
}

// GetCharacter returns the requested components of one character.
func (c *Client) GetCharacter(ctx context.Context, membershipType int, membershipID, characterID string, components ...ComponentType) (json.RawMessage, error) {
	if len(components) == 0 {
		components = []ComponentType{ComponentCharacters, ComponentCharacterEquipment, ComponentCharacterProgressions}
	}
	return c.Request(ctx, fmt.Sprintf("/Destiny2/%d/Profile/%s/Character/%s/?components=%s",
		membershipType, url.PathEscape(membershipID), url.PathEscape(characterID), joinComponents(components)), nil)
}

// GetActivityHistory returns one page of a character's activity history.
func (c *Client) GetActivityHistory(ctx context.Context, membershipType int, membershipID, characterID string, mode, count, page int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("mode", strconv.Itoa(mode))
	q.Set("count", strconv.Itoa(count))
	q.Set("page", strconv.Itoa(page))
	return c.Request(ctx, fmt.Sprintf("/Destiny2/%d/Account/%s/Character/%s/Stats/Activities/?%s",
		membershipType, url.PathEscape(membershipID), url.PathEscape(characterID), q.Encode()), nil)
}

// GetPostGameCarnageReport returns the report of one activity instance.
// Reports are served from the stats host.
func (c *Client) GetPostGameCarnageReport(ctx context.Context, activityID string) (json.RawMessage, error) {
	return c.Request(ctx, fmt.Sprintf("%s/Destiny2/Stats/PostGameCarnageReport/%s/",
		c.config.StatsBaseURL, url.PathEscape(activityID)), nil)
}

// GetEntityDefinition returns one manifest definition by type and hash.
func (c *Client) GetEntityDefinition(ctx context.Context, entityType string, hash uint32) (json.RawMessage, error) {
	return c.Request(ctx, fmt.Sprintf("/Destiny2/Manifest/%s/%d/", url.PathEscape(entityType), hash), nil)
}

// GetHistoricalStats returns aggregate stats for an account or character.
// characterID "0" means all characters.
func (c *Client) GetHistoricalStats(ctx context.Context, membershipType int, membershipID, characterID string) (json.RawMessage, error) {
	if characterID == "" {
		characterID = "0"
	}
	return c.Request(ctx, fmt.Sprintf("/Destiny2/%d/Account/%s/Character/%s/Stats/",
		membershipType, url.PathEscape(membershipID), url.PathEscape(characterID)), nil)
}

// GetLinkedProfiles returns the memberships linked to an account.
func (c *Client) GetLinkedProfiles(ctx context.Context, membershipType int, membershipID string) (json.RawMessage, error) {
	return c.Request(ctx, fmt.Sprintf("/Destiny2/%d/Profile/%s/LinkedProfiles/",
		membershipType, url.PathEscape(membershipID)), nil)
}

// GetGroupsForMember returns the clans a member belongs to.
func (c *Client) GetGroupsForMember(ctx context.Context, membershipType int, membershipID string) (json.RawMessage, error) {
	return c.Request(ctx, fmt.Sprintf("/GroupV2/User/%d/%s/0/1/",
		membershipType, url.PathEscape(membershipID)), nil)
}

// SearchGroups finds clans by exact name. groupType 1 is a clan.
func (c *Client) SearchGroups(ctx context.Context, name string, groupType int) (json.RawMessage, error) {
	return c.Request(ctx, fmt.Sprintf("/GroupV2/Name/%s/%d/", url.PathEscape(name), groupType), nil)
}

// GetGroupMembers returns one page of a clan roster.
func (c *Client) GetGroupMembers(ctx context.Context, groupID string, page int) (SearchResultPage[GroupMember], error) {
	if page < 1 {
		page = 1
	}
	return Fetch[SearchResultPage[GroupMember]](ctx, c, fmt.Sprintf("/GroupV2/%s/Members/?currentPage=%d",
		url.PathEscape(groupID), page), nil)
}

// GetAllGroupMembers returns the whole clan roster, fetching pages after
// the first in parallel.
func (c *Client) GetAllGroupMembers(ctx context.Context, groupID string) ([]GroupMember, error) {
	return pagination.FetchAll(ctx, pagination.DefaultConfig(),
		func(ctx context.Context, page int) (pagination.Page[GroupMember], error) {
			res, err := c.GetGroupMembers(ctx, groupID, page)
			if err != nil {
				return pagination.Page[GroupMember]{}, err
			}
			return pagination.Page[GroupMember]{
				Items:        res.Results,
				TotalResults: res.TotalResults,
				HasMore:      res.HasMore,
			}, nil
		})
}

func joinComponents(components []ComponentType) string {
	parts := make([]string, len(components))
	for i, c := range components {
		parts[i] = strconv.Itoa(int(c))
	}
	return strings.Join(parts, ",")
}

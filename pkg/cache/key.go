package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey builds a deterministic key for an upstream query.
type CacheKey struct {
	// Endpoint names the query (e.g. "pgcr", "contest/leaderboard")
	Endpoint string

	// PathParams identify the resource (e.g. {"id": "14789523652"})
	PathParams map[string]string

	// QueryParams are the optional query parameters
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: endpoint:param1=val1:param2=val2:query1=val1
//
// Example:
//
//	pgcr:id=14789523652
func (k CacheKey) String() string {
	var parts []string

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.PathParams) > 0 {
		pathKeys := make([]string, 0, len(k.PathParams))
		for key := range k.PathParams {
			pathKeys = append(pathKeys, key)
		}
		sort.Strings(pathKeys)

		for _, key := range pathKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.PathParams[key]))
		}
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}

// SanitizeKey maps a key to a file name stem: every rune outside
// [A-Za-z0-9-_.] becomes '_'.
func SanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}

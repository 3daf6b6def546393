package manifest

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// sourceResolver derives a human-readable source for an item, reporting
// false when it has nothing to offer.
type sourceResolver func(s *snapshot, item *ItemDefinition) (string, bool)

// sourceResolvers are tried in order; the first hit wins.
var sourceResolvers = []sourceResolver{
	seasonSource,
	watermarkSource,
	collectibleSource,
}

func seasonSource(s *snapshot, item *ItemDefinition) (string, bool) {
	season, ok := s.season(item)
	if !ok || season.Name == "" {
		return "", false
	}
	if season.Number > 0 {
		return fmt.Sprintf("%s (S%d)", season.Name, season.Number), true
	}
	return season.Name, true
}

func watermarkSource(_ *snapshot, item *ItemDefinition) (string, bool) {
	wm, ok := lookupWatermark(item.IconWatermark)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s (S%d)", wm.Name, wm.Number), true
}

func collectibleSource(s *snapshot, item *ItemDefinition) (string, bool) {
	if item.CollectibleHash == 0 {
		return "", false
	}
	src, ok := s.collectibles[item.CollectibleHash]
	return src, ok && src != ""
}

func lookupWatermark(iconWatermark string) (watermarkSeason, bool) {
	if iconWatermark == "" {
		return watermarkSeason{}, false
	}
	wm, ok := watermarkSeasons[path.Base(iconWatermark)]
	return wm, ok
}

func (s *snapshot) season(item *ItemDefinition) (Season, bool) {
	if item.SeasonHash == 0 {
		return Season{}, false
	}
	season, ok := s.seasons[item.SeasonHash]
	return season, ok
}

// source resolves the display source of item, "" when unknown.
func (s *snapshot) source(item *ItemDefinition) string {
	for _, resolve := range sourceResolvers {
		if src, ok := resolve(s, item); ok {
			return src
		}
	}
	return ""
}

// seasonNumber returns the season the item belongs to, 0 when unknown.
// The season reference wins over the watermark table.
func (s *snapshot) seasonNumber(item *ItemDefinition) int {
	if season, ok := s.season(item); ok {
		return season.Number
	}
	if wm, ok := lookupWatermark(item.IconWatermark); ok {
		return wm.Number
	}
	return 0
}

func (s *snapshot) result(item *ItemDefinition, contentBaseURL string) SearchResult {
	r := SearchResult{
		ID:           item.ID,
		Name:         item.Name,
		Description:  item.Description,
		ItemType:     ItemTypeName(item.ItemType),
		TierType:     TierName(item.TierType, item.TierTypeName),
		Source:       s.source(item),
		SeasonNumber: s.seasonNumber(item),
	}
	if item.Icon != "" {
		r.Icon = contentBaseURL + item.Icon
	}
	return r
}

// search returns every item whose name matches query, ranked, then cut to
// limit. query must already be lower case.
func (s *snapshot) search(query string, limit int, contentBaseURL string) []SearchResult {
	seen := make(map[uint32]struct{})
	var matches []SearchResult

	for _, item := range s.byName[query] {
		seen[item.ID] = struct{}{}
		matches = append(matches, s.result(item, contentBaseURL))
	}

	for _, item := range s.ordered {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		if strings.Contains(strings.ToLower(item.Name), query) {
			seen[item.ID] = struct{}{}
			matches = append(matches, s.result(item, contentBaseURL))
		}
	}

	sortResults(matches)

	if len(matches) > limit {
		matches = matches[:limit]
	}
	if matches == nil {
		matches = []SearchResult{}
	}
	return matches
}

// sortResults orders by category, tier, newest season, name, then id.
func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if ra, rb := rank(categoryOrder, a.ItemType), rank(categoryOrder, b.ItemType); ra != rb {
			return ra < rb
		}
		if ra, rb := rank(tierOrder, a.TierType), rank(tierOrder, b.TierType); ra != rb {
			return ra < rb
		}
		if a.SeasonNumber != b.SeasonNumber {
			return a.SeasonNumber > b.SeasonNumber
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// Search finds items by case-insensitive name. Exact matches and
// substring matches are ranked together; limit <= 0 means
// DefaultSearchLimit. A query without matches returns an empty slice.
func (c *Cache) Search(query string, limit int) ([]SearchResult, error) {
	s, err := c.ready()
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	manifestSearchesTotal.Inc()
	return s.search(q, limit, c.config.ContentBaseURL), nil
}

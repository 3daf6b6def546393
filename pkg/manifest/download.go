package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/destiny-client/pkg/client"
)

// Definition tables downloaded for each manifest generation.
const (
	ItemDefinitionTable        = "DestinyInventoryItemDefinition"
	SeasonDefinitionTable      = "DestinySeasonDefinition"
	CollectibleDefinitionTable = "DestinyCollectibleDefinition"
)

// ManifestSource reports the current manifest version and content paths.
// *client.Client satisfies it.
type ManifestSource interface {
	GetManifest(ctx context.Context) (*client.Manifest, error)
}

type rawDisplayProperties struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type rawItem struct {
	Hash              uint32               `json:"hash"`
	DisplayProperties rawDisplayProperties `json:"displayProperties"`
	ItemType          int                  `json:"itemType"`
	ItemSubType       int                  `json:"itemSubType"`
	Inventory         *struct {
		TierType     int    `json:"tierType"`
		TierTypeName string `json:"tierTypeName"`
	} `json:"inventory"`
	SeasonHash      uint32 `json:"seasonHash"`
	IconWatermark   string `json:"iconWatermark"`
	CollectibleHash uint32 `json:"collectibleHash"`
}

type rawSeason struct {
	Hash              uint32               `json:"hash"`
	SeasonNumber      int                  `json:"seasonNumber"`
	DisplayProperties rawDisplayProperties `json:"displayProperties"`
}

type rawCollectible struct {
	Hash         uint32 `json:"hash"`
	SourceString string `json:"sourceString"`
}

// download fetches the three definition tables named by m in parallel and
// builds a new snapshot. Nothing is persisted here.
func (c *Cache) download(ctx context.Context, m *client.Manifest) (*snapshot, error) {
	paths := make(map[string]string, 3)
	for _, table := range []string{ItemDefinitionTable, SeasonDefinitionTable, CollectibleDefinitionTable} {
		path, ok := m.ContentPath(c.config.Locale, table)
		if !ok {
			return nil, fmt.Errorf("manifest %s has no %s path for locale %q", m.Version, table, c.config.Locale)
		}
		paths[table] = path
	}

	var (
		items        map[string]rawItem
		seasons      map[string]rawSeason
		collectibles map[string]rawCollectible
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.fetchTable(gctx, paths[ItemDefinitionTable], &items) })
	g.Go(func() error { return c.fetchTable(gctx, paths[SeasonDefinitionTable], &seasons) })
	g.Go(func() error { return c.fetchTable(gctx, paths[CollectibleDefinitionTable], &collectibles) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seasonTable := make(map[uint32]Season, len(seasons))
	for _, s := range seasons {
		seasonTable[s.Hash] = Season{Name: s.DisplayProperties.Name, Number: s.SeasonNumber}
	}

	collectibleTable := make(map[uint32]string, len(collectibles))
	for _, col := range collectibles {
		if col.SourceString != "" {
			collectibleTable[col.Hash] = col.SourceString
		}
	}

	list := make([]ItemDefinition, 0, len(items))
	for _, raw := range items {
		// Unnamed entries are redacted or placeholder definitions.
		if raw.DisplayProperties.Name == "" {
			continue
		}
		item := ItemDefinition{
			ID:              raw.Hash,
			Name:            raw.DisplayProperties.Name,
			Description:     raw.DisplayProperties.Description,
			Icon:            raw.DisplayProperties.Icon,
			ItemType:        raw.ItemType,
			ItemSubType:     raw.ItemSubType,
			SeasonHash:      raw.SeasonHash,
			IconWatermark:   raw.IconWatermark,
			CollectibleHash: raw.CollectibleHash,
		}
		if raw.Inventory != nil {
			item.TierType = raw.Inventory.TierType
			item.TierTypeName = raw.Inventory.TierTypeName
		}
		list = append(list, item)
	}

	version := VersionRecord{Version: m.Version, DownloadedAt: c.now().UTC()}
	return newSnapshot(version, list, seasonTable, collectibleTable), nil
}

// fetchTable downloads one content file and decodes it into v.
func (c *Cache) fetchTable(ctx context.Context, path string, v any) error {
	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.config.ContentBaseURL + path
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("fetch %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	c.logger.Debug().
		Str("path", path).
		Dur("duration", time.Since(start)).
		Msg("Fetched manifest table")
	return nil
}

package manifest

import (
	"bytes"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// ItemDefinition is one named inventory item as stored in items.json.
type ItemDefinition struct {
	ID              uint32 `json:"hash"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Icon            string `json:"icon,omitempty"`
	ItemType        int    `json:"itemType"`
	ItemSubType     int    `json:"itemSubType"`
	TierType        int    `json:"tierType"`
	TierTypeName    string `json:"tierTypeName,omitempty"`
	SeasonHash      uint32 `json:"seasonHash,omitempty"`
	IconWatermark   string `json:"iconWatermark,omitempty"`
	CollectibleHash uint32 `json:"collectibleHash,omitempty"`
}

// Season is a season or episode entry from seasons.json.
type Season struct {
	Name   string `json:"name"`
	Number int    `json:"number,omitempty"`
}

// UnmarshalJSON accepts both the object form and the older plain string
// form where only the name was stored.
func (s *Season) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*s = Season{Name: name}
		return nil
	}

	type plain Season
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Season(p)
	return nil
}

// VersionRecord is the persisted manifest-version.json.
type VersionRecord struct {
	Version      string    `json:"version"`
	DownloadedAt time.Time `json:"downloadedAt"`

	// Generation names the subdirectory holding this version's tables.
	// Empty for the flat layout, where tables sit next to the record.
	Generation string `json:"generation,omitempty"`
}

// Expired reports whether the record is older than ttl at now.
func (v VersionRecord) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(v.DownloadedAt) > ttl
}

// SearchResult is an item enriched for display.
type SearchResult struct {
	ID           uint32 `json:"hash"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Icon         string `json:"icon,omitempty"`
	ItemType     string `json:"itemType"`
	TierType     string `json:"tierType"`
	Source       string `json:"source,omitempty"`
	SeasonNumber int    `json:"seasonNumber,omitempty"`
}

// State is the lifecycle state of a Cache.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a point-in-time view of the cache.
type Status struct {
	State        State         `json:"-"`
	StateName    string        `json:"state"`
	Degraded     bool          `json:"degraded"`
	Version      string        `json:"version,omitempty"`
	DownloadedAt time.Time     `json:"downloadedAt"`
	Age          time.Duration `json:"age,omitempty"`
	Items        int           `json:"items"`
	Seasons      int           `json:"seasons"`
}

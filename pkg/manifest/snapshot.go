package manifest

import (
	"sort"
	"strings"
)

// snapshot is an immutable view of one manifest generation. A refresh
// builds a new snapshot and swaps it in whole.
type snapshot struct {
	version      VersionRecord
	items        map[uint32]*ItemDefinition
	ordered      []*ItemDefinition // id ascending
	byName       map[string][]*ItemDefinition
	seasons      map[uint32]Season
	collectibles map[uint32]string
}

// newSnapshot indexes the given tables. The tables must not be modified
// afterwards.
func newSnapshot(version VersionRecord, items []ItemDefinition, seasons map[uint32]Season, collectibles map[uint32]string) *snapshot {
	s := &snapshot{
		version:      version,
		items:        make(map[uint32]*ItemDefinition, len(items)),
		ordered:      make([]*ItemDefinition, 0, len(items)),
		byName:       make(map[string][]*ItemDefinition),
		seasons:      seasons,
		collectibles: collectibles,
	}
	if s.seasons == nil {
		s.seasons = map[uint32]Season{}
	}
	if s.collectibles == nil {
		s.collectibles = map[uint32]string{}
	}

	for i := range items {
		item := &items[i]
		if item.Name == "" {
			continue
		}
		if _, dup := s.items[item.ID]; dup {
			continue
		}
		s.items[item.ID] = item
		s.ordered = append(s.ordered, item)
	}

	sort.Slice(s.ordered, func(i, j int) bool {
		return s.ordered[i].ID < s.ordered[j].ID
	})

	for _, item := range s.ordered {
		key := strings.ToLower(item.Name)
		s.byName[key] = append(s.byName[key], item)
	}

	return s
}

func (s *snapshot) empty() bool {
	return s == nil || len(s.items) == 0
}

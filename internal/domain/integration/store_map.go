package integration

import (
	"sort"
	"strings"
)

// StoreMap maps Catapult store numbers to VUSION store ids.
// Stores absent from the map are ignored everywhere in the pipeline.
// A StoreMap is immutable once built and safe for concurrent use.
type StoreMap struct {
	targets map[string]string
}

// NewStoreMap builds a StoreMap from source -> destination pairs.
// Entries with a blank source or destination are dropped; destinations are trimmed.
func NewStoreMap(entries map[string]string) StoreMap {
	targets := make(map[string]string, len(entries))
	for source, dest := range entries {
		source = strings.TrimSpace(source)
		dest = strings.TrimSpace(dest)
		if source == "" || dest == "" {
			continue
		}
		targets[source] = dest
	}
	return StoreMap{targets: targets}
}

// Resolve returns the destination store id for a source store number
func (m StoreMap) Resolve(source string) (string, bool) {
	dest, ok := m.targets[source]
	return dest, ok
}

// Len returns the number of mapped stores
func (m StoreMap) Len() int {
	return len(m.targets)
}

// Sources returns the mapped source store numbers in sorted order
func (m StoreMap) Sources() []string {
	sources := make([]string, 0, len(m.targets))
	for source := range m.targets {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}

package domain

import (
	"maps"
	"slices"
)

// FileStamp identifies one version of a file without reading it.
type FileStamp struct {
	Size    int64
	ModTime int64
}

// Snapshot maps the paths below a root to their stamps.
type Snapshot map[string]FileStamp

// Changed returns the sorted paths of after that are new or differ from s.
func (s Snapshot) Changed(after Snapshot) []string {
	var changed []string
	for _, path := range slices.Sorted(maps.Keys(after)) {
		if prev, ok := s[path]; !ok || prev != after[path] {
			changed = append(changed, path)
		}
	}
	return changed
}

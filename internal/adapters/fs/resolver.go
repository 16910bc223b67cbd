package fs

import (
	"path/filepath"
	"slices"

	"go.trai.ch/zerr"
)

// Resolver expands glob patterns using filepath.Glob.
type Resolver struct{}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveGlobs returns the sorted, de-duplicated matches of patterns.
// Patterns that match nothing contribute nothing.
func (r *Resolver) ResolveGlobs(patterns []string) ([]string, error) {
	uniquePaths := make(map[string]bool)

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to glob path"), "pattern", pattern)
		}
		for _, match := range matches {
			uniquePaths[match] = true
		}
	}

	result := make([]string, 0, len(uniquePaths))
	for path := range uniquePaths {
		result = append(result, path)
	}
	slices.Sort(result)

	return result, nil
}

package ports

import "go.trai.ch/kiln/internal/core/domain"

// Snapshotter records the files below a directory.
//
//go:generate go run go.uber.org/mock/mockgen -source=staging.go -destination=mocks/mock_staging.go -package=mocks
type Snapshotter interface {
	// Snapshot returns the stamps of every file below root, keyed by path
	// relative to root. The private state directory is skipped.
	Snapshot(root string) (domain.Snapshot, error)
}

// PostRunner applies post-install actions.
type PostRunner interface {
	// Apply runs one resolved action.
	Apply(action domain.PostAction) (domain.PostResult, error)
}

package ports

import "go.trai.ch/kiln/internal/core/domain"

// BuildInfoStore defines the interface for storing and retrieving build information.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type BuildInfoStore interface {
	// Open binds the store to the given state file.
	Open(path string) error

	// Get retrieves the build info for a given target name.
	// Returns nil, nil if not found.
	Get(target string) (*domain.BuildInfo, error)

	// Put stores the build info.
	Put(info domain.BuildInfo) error

	// Reset discards every record.
	Reset() error
}

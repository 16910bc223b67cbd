package ports

import "go.trai.ch/kiln/internal/core/domain"

// Hasher defines the interface for computing hashes.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// ComputeInputHash computes the hash of everything that defines how a target is built.
	ComputeInputHash(target *domain.ResolvedTarget) (string, error)

	// ComputeOutputHash computes the hash of the contents of the given files.
	ComputeOutputHash(paths []string) (string, error)
}

package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// Fetcher downloads source trees.
//
//go:generate go run go.uber.org/mock/mockgen -source=fetcher.go -destination=mocks/mock_fetcher.go -package=mocks
type Fetcher interface {
	// Fetch downloads src and extracts it into dest, stripping the first
	// path component of every entry.
	Fetch(ctx context.Context, src domain.Source, dest string) error
}

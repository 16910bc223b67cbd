package ports

import "context"

// Archiver writes release archives.
//
//go:generate go run go.uber.org/mock/mockgen -source=archiver.go -destination=mocks/mock_archiver.go -package=mocks
type Archiver interface {
	// Archive writes a gzip-compressed tarball of the tree below root to
	// dest. Entries are named relative to root. dest is replaced atomically.
	Archive(ctx context.Context, root, dest string) error
}

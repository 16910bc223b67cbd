package ports

import "go.trai.ch/kiln/internal/core/domain"

// Inspector reads the dynamic section of shared objects.
//
//go:generate go run go.uber.org/mock/mockgen -source=inspector.go -destination=mocks/mock_inspector.go -package=mocks
type Inspector interface {
	// Inspect returns the SONAME and NEEDED entries of the file at path.
	// A file that is not ELF yields an error joined with domain.ErrNotELF.
	Inspect(path string) (*domain.SharedObject, error)
}

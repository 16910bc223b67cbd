// Package elf reads the dynamic section of ELF shared objects.
package elf

import (
	"debug/elf"
	"errors"
	"io"
	"path/filepath"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Inspector = (*Inspector)(nil)

// Inspector implements ports.Inspector using debug/elf.
type Inspector struct{}

// NewInspector creates a new Inspector.
func NewInspector() *Inspector {
	return &Inspector{}
}

// Inspect returns the SONAME and NEEDED entries of the file at path.
// Objects without a dynamic section have neither.
func (i *Inspector) Inspect(path string) (*domain.SharedObject, error) {
	f, err := elf.Open(path)
	if err != nil {
		var formatErr *elf.FormatError
		if errors.As(err, &formatErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.Join(domain.ErrNotELF, zerr.With(zerr.Wrap(err, "failed to parse ELF header"), "path", path))
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Read-only file

	needed, err := f.ImportedLibraries()
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read NEEDED entries"), "path", path)
	}

	sonames, err := f.DynString(elf.DT_SONAME)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read SONAME"), "path", path)
	}

	obj := &domain.SharedObject{
		Name:   filepath.Base(path),
		Needed: needed,
	}
	if len(sonames) > 0 {
		obj.SONAME = sonames[0]
	}
	if obj.Needed == nil {
		obj.Needed = []string{}
	}
	return obj, nil
}

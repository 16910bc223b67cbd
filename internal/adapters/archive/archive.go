// Package archive writes release tarballs.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/klauspost/pgzip"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Archiver = (*Archiver)(nil)

// Archiver implements ports.Archiver with tar and parallel gzip.
type Archiver struct{}

// NewArchiver creates a new Archiver.
func NewArchiver() *Archiver {
	return &Archiver{}
}

// Archive writes a gzip-compressed tarball of the tree below root to dest.
// Entries appear in lexical order with ownership cleared. dest is only
// replaced once the archive is complete.
func (a *Archiver) Archive(ctx context.Context, root, dest string) error {
	if err := a.archive(ctx, root, dest); err != nil {
		return errors.Join(domain.ErrArchiveFailed, zerr.With(err, "archive", dest))
	}
	return nil
}

func (a *Archiver) archive(ctx context.Context, root, dest string) error {
	info, err := os.Stat(root)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to stat release root"), "root", root)
	}
	if !info.IsDir() {
		return zerr.With(zerr.New("release root is not a directory"), "root", root)
	}

	if err := os.MkdirAll(filepath.Dir(dest), domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create archive directory")
	}

	pf, err := renameio.TempFile("", dest)
	if err != nil {
		return zerr.Wrap(err, "failed to create temporary archive")
	}
	defer pf.Cleanup() //nolint:errcheck // Cleanup after a successful replace is a no-op

	gz := pgzip.NewWriter(pf)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		return writeEntry(tw, root, path, d)
	})
	if err != nil {
		return zerr.Wrap(err, "failed to write archive entries")
	}

	if err := tw.Close(); err != nil {
		return zerr.Wrap(err, "failed to finish tar stream")
	}
	if err := gz.Close(); err != nil {
		return zerr.Wrap(err, "failed to finish gzip stream")
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return zerr.Wrap(err, "failed to replace archive")
	}
	return nil
}

func writeEntry(tw *tar.Writer, root, path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to stat entry"), "path", path)
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to read symlink"), "path", path)
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to build tar header"), "path", path)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to relativize entry"), "path", path)
	}
	hdr.Name = filepath.ToSlash(rel)
	if info.IsDir() {
		hdr.Name += "/"
	}
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""

	if err := tw.WriteHeader(hdr); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write tar header"), "path", path)
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path) //nolint:gosec // Path comes from walking the release root
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open entry"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Read-only file

	if _, err := io.Copy(tw, f); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to copy entry"), "path", path)
	}
	return nil
}

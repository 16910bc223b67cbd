// Package fs provides file system adapters for walking, hashing and editing the staging prefix.
package fs

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Snapshotter = (*Walker)(nil)

// Walker provides file walking functionality.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// WalkFiles yields all non-directory paths below root, skipping .git and
// directories matching ignores. Paths include root. A walk error is yielded
// once with an empty path and ends the sequence.
func (w *Walker) WalkFiles(root string, ignores []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if skipAction := w.shouldSkipDir(d, ignores); skipAction != nil {
				return skipAction
			}

			if d.IsDir() {
				return nil
			}

			if !yield(path, nil) {
				return filepath.SkipAll
			}

			return nil
		})
		if err != nil {
			yield("", zerr.With(zerr.Wrap(err, "failed to walk directory"), "root", root))
		}
	}
}

// shouldSkipDir returns filepath.SkipDir for directories that must not be walked.
func (w *Walker) shouldSkipDir(d fs.DirEntry, ignores []string) error {
	if !d.IsDir() {
		return nil
	}

	name := d.Name()
	if name == ".git" {
		return filepath.SkipDir
	}

	for _, ignore := range ignores {
		if matched, _ := filepath.Match(ignore, name); matched {
			return filepath.SkipDir
		}
	}

	return nil
}

// Snapshot records every file below root, keyed by slash-separated path
// relative to root. Symlinks are recorded, not followed. The private state
// directory is skipped. A missing root yields an empty snapshot.
func (w *Walker) Snapshot(root string) (domain.Snapshot, error) {
	snap := make(domain.Snapshot)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return snap, nil
	}

	for path, err := range w.WalkFiles(root, []string{domain.KilnDirName}) {
		if err != nil {
			return nil, err
		}
		info, err := os.Lstat(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to stat staged file"), "path", path)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to relativize staged file"), "path", path)
		}
		snap[filepath.ToSlash(rel)] = domain.FileStamp{
			Size:    info.Size(),
			ModTime: info.ModTime().UnixNano(),
		}
	}
	return snap, nil
}

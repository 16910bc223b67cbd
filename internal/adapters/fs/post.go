package fs

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.PostRunner = (*PostRunner)(nil)

// PostRunner applies post-install actions to the staging prefix.
type PostRunner struct {
	resolver *Resolver
}

// NewPostRunner creates a new PostRunner.
func NewPostRunner(resolver *Resolver) *PostRunner {
	return &PostRunner{resolver: resolver}
}

// Apply runs one resolved action.
func (p *PostRunner) Apply(action domain.PostAction) (domain.PostResult, error) {
	if err := action.Validate(); err != nil {
		return domain.PostResult{}, err
	}

	switch action.Kind {
	case domain.PostActionRemove:
		return p.remove(action.Globs)
	case domain.PostActionPkgConfigLibs:
		return domain.PostResult{Matched: []string{action.File}}, appendLibs(action.File, action.Libs)
	case domain.PostActionCopy:
		return domain.PostResult{Matched: []string{action.To}}, copyFile(action.From, action.To)
	}
	return domain.PostResult{}, nil
}

// remove deletes every match and then globs again. Anything still matching is
// reported as stray.
func (p *PostRunner) remove(globs []string) (domain.PostResult, error) {
	matches, err := p.resolver.ResolveGlobs(globs)
	if err != nil {
		return domain.PostResult{}, err
	}

	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return domain.PostResult{}, zerr.With(zerr.Wrap(err, "failed to remove file"), "path", path)
		}
	}

	remaining, err := p.resolver.ResolveGlobs(globs)
	if err != nil {
		return domain.PostResult{}, err
	}
	if len(remaining) > 0 {
		detail := zerr.With(zerr.New("files survived removal"), "paths", strings.Join(remaining, " "))
		return domain.PostResult{Matched: matches}, errors.Join(domain.ErrStrayShared, detail)
	}

	return domain.PostResult{Matched: matches}, nil
}

// appendLibs adds libs, as one group, to every "Libs:" line of a pkg-config
// file that does not already end with that group. The group keeps its order
// so single-pass linkers see the flags as declared.
func appendLibs(path string, libs []string) error {
	data, err := os.ReadFile(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to read pkg-config file"), "path", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to stat pkg-config file"), "path", path)
	}

	subst := strings.Join(libs, " ")
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		if !bytes.HasPrefix(line, []byte("Libs:")) {
			continue
		}
		trimmed := strings.TrimRight(string(line), " \t\r")
		if strings.HasSuffix(trimmed, subst) {
			continue
		}
		lines[i] = []byte(trimmed + " " + subst)
	}

	if err := renameio.WriteFile(path, bytes.Join(lines, []byte("\n")), info.Mode().Perm()); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write pkg-config file"), "path", path)
	}
	return nil
}

// copyFile copies a regular file, keeping its permission bits.
func copyFile(from, to string) error {
	src, err := os.Open(from) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open source file"), "path", from)
	}
	defer src.Close() //nolint:errcheck // Best effort close in defer

	info, err := src.Stat()
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to stat source file"), "path", from)
	}

	if err := os.MkdirAll(filepath.Dir(to), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create destination directory"), "path", to)
	}

	dst, err := renameio.TempFile("", to)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create destination file"), "path", to)
	}
	defer dst.Cleanup() //nolint:errcheck // Cleanup after a successful replace is a no-op

	if _, err := io.Copy(dst, src); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to copy file"), "path", to)
	}
	if err := dst.Chmod(info.Mode().Perm()); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to set file mode"), "path", to)
	}
	if err := dst.CloseAtomicallyReplace(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to replace file"), "path", to)
	}
	return nil
}

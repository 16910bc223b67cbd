// Package packager assembles the staging prefix into a release tree and archive.
package packager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

const releaseTarget = "release"

// Packager copies release artifacts out of the staging prefix.
type Packager struct {
	inspector ports.Inspector
	files     ports.PostRunner
	executor  ports.Executor
	archiver  ports.Archiver
	logger    ports.Logger
	platform  domain.Platform
}

// New creates a new Packager for the host platform.
func New(
	inspector ports.Inspector,
	files ports.PostRunner,
	executor ports.Executor,
	archiver ports.Archiver,
	logger ports.Logger,
) *Packager {
	return &Packager{
		inspector: inspector,
		files:     files,
		executor:  executor,
		archiver:  archiver,
		logger:    logger,
		platform:  domain.HostPlatform(),
	}
}

// Assemble wipes the release directory and fills it from the staging prefix.
//
// Shared objects are placed in the runtime directory under their SONAME and
// every artifact goes to the link directory under its own name. Headers keep
// their path relative to the staging include directory.
func (pk *Packager) Assemble(ctx context.Context, p *domain.Pipeline) (*domain.ArtifactSet, error) {
	set := &domain.ArtifactSet{Root: p.Release.Dir, Platform: pk.platform}

	if err := os.RemoveAll(set.Root); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to wipe release directory"), "path", set.Root)
	}
	for _, dir := range []string{set.RuntimeDir(), set.LinkDir(), set.IncludeDir()} {
		if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to create release directory"), "path", dir)
		}
	}

	for t := range p.Graph.Walk() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, artifact := range t.Artifacts {
			if err := pk.copyArtifact(p, set, t.Name.String(), artifact); err != nil {
				return nil, err
			}
		}
		for _, pattern := range t.Headers {
			if err := pk.copyHeaders(p, set, t.Name.String(), pattern); err != nil {
				return nil, err
			}
		}
	}

	if p.Release.Strip {
		if err := pk.strip(ctx, set); err != nil {
			return nil, err
		}
	}

	members, err := listMembers(set.Root)
	if err != nil {
		return nil, err
	}
	set.Members = members

	pk.logger.Info(fmt.Sprintf("assembled %d files in %s", len(members), set.Root))
	return set, nil
}

func (pk *Packager) copyArtifact(p *domain.Pipeline, set *domain.ArtifactSet, target, artifact string) error {
	src := filepath.Join(p.Staging.Lib(), artifact)
	if _, err := os.Stat(src); err != nil {
		return errors.Join(domain.ErrArtifactMissing,
			zerr.With(zerr.With(zerr.Wrap(err, "artifact not found in staging prefix"), "target", target), "artifact", artifact))
	}

	if isSharedName(artifact) {
		obj, err := pk.inspector.Inspect(src)
		if err != nil {
			return zerr.With(err, "target", target)
		}
		soname := obj.SONAME
		if soname == "" {
			soname = filepath.Base(artifact)
		}

		soPath := filepath.Join(p.Staging.Lib(), soname)
		if _, err := os.Stat(soPath); err != nil {
			return errors.Join(domain.ErrArtifactMissing,
				zerr.With(zerr.With(zerr.Wrap(err, "SONAME file not found in staging prefix"), "target", target), "soname", soname))
		}
		if err := pk.copy(soPath, filepath.Join(set.RuntimeDir(), soname)); err != nil {
			return zerr.With(err, "target", target)
		}
	}

	if err := pk.copy(src, filepath.Join(set.LinkDir(), filepath.Base(artifact))); err != nil {
		return zerr.With(err, "target", target)
	}
	return nil
}

// copyHeaders copies every file matching pattern below the staging include
// directory, descending into matched directories.
func (pk *Packager) copyHeaders(p *domain.Pipeline, set *domain.ArtifactSet, target, pattern string) error {
	include := p.Staging.Include()
	matches, err := filepath.Glob(filepath.Join(include, pattern))
	if err != nil {
		return zerr.With(zerr.With(zerr.Wrap(err, "invalid header pattern"), "target", target), "pattern", pattern)
	}
	if len(matches) == 0 {
		return errors.Join(domain.ErrArtifactMissing,
			zerr.With(zerr.With(zerr.New("no headers matched"), "target", target), "pattern", pattern))
	}

	for _, match := range matches {
		err := filepath.WalkDir(match, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(include, path)
			if err != nil {
				return err
			}
			return pk.copy(path, filepath.Join(set.IncludeDir(), rel))
		})
		if err != nil {
			return zerr.With(err, "target", target)
		}
	}
	return nil
}

func (pk *Packager) copy(from, to string) error {
	_, err := pk.files.Apply(domain.PostAction{Kind: domain.PostActionCopy, From: from, To: to})
	return err
}

// strip removes debug symbols and run paths from every shared object in the set.
// A failing tool only warns; the object is shipped as is.
func (pk *Packager) strip(ctx context.Context, set *domain.ArtifactSet) error {
	var objects []string
	err := filepath.WalkDir(set.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && isSharedName(d.Name()) {
			objects = append(objects, path)
		}
		return nil
	})
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to walk release directory"), "path", set.Root)
	}

	for _, path := range objects {
		for _, argv := range [][]string{{"strip", "-x", path}, {"chrpath", "-d", path}} {
			err := pk.executor.Execute(ctx, &domain.Command{
				Target: releaseTarget,
				Step:   argv[0],
				Args:   argv,
				Dir:    set.Root,
			})
			if err != nil {
				pk.logger.Warn(fmt.Sprintf("%s %s failed: %v", argv[0], path, err))
			}
		}
	}
	return nil
}

// Archive writes the release archive next to the pipeline file and returns its path.
func (pk *Packager) Archive(ctx context.Context, p *domain.Pipeline, set *domain.ArtifactSet) (string, error) {
	dest := filepath.Join(p.Root, set.Platform.ArchiveName(p.Release.Name))
	if err := pk.archiver.Archive(ctx, set.Root, dest); err != nil {
		return "", err
	}
	pk.logger.Info("wrote " + dest)
	return dest, nil
}

func listMembers(root string) ([]string, error) {
	var members []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		members = append(members, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to list release directory"), "path", root)
	}
	slices.Sort(members)
	return members, nil
}

func isSharedName(name string) bool {
	return strings.HasSuffix(name, ".so") || strings.Contains(name, ".so.")
}

// Package auditor classifies the dynamic dependencies of a release tree.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Auditor inspects every shared object below a directory.
type Auditor struct {
	inspector ports.Inspector
	logger    ports.Logger
	workers   int
}

// New creates a new Auditor.
func New(inspector ports.Inspector, logger ports.Logger) *Auditor {
	return &Auditor{
		inspector: inspector,
		logger:    logger,
		workers:   runtime.NumCPU(),
	}
}

// Audit returns the dependency report of the shared objects below dir.
// Warnings are logged but never turn into an error here.
func (a *Auditor) Audit(ctx context.Context, dir string, policy domain.AuditPolicy) (*domain.DependencyReport, error) {
	paths, err := sharedObjects(dir)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.SharedObject, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			obj, err := a.inspector.Inspect(path)
			if errors.Is(err, domain.ErrNotELF) {
				a.logger.Debug("skipping non-ELF file " + path)
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = obj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(results))
	objects := make([]domain.SharedObject, 0, len(results))
	for _, obj := range results {
		if obj == nil || seen[obj.Name] {
			continue
		}
		seen[obj.Name] = true
		objects = append(objects, *obj)
	}

	report := domain.NewDependencyReport(objects, policy)
	a.logger.Info(fmt.Sprintf("audited %d shared objects: %d external, %d self-satisfied",
		len(objects), len(report.External), len(report.SelfSatisfied)))
	for _, w := range report.Warnings {
		a.logger.Warn(w)
	}
	return report, nil
}

// sharedObjects returns the lexically ordered regular files below dir whose
// name looks like a shared object.
func sharedObjects(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && isSharedName(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to walk directory"), "path", dir)
	}
	return paths, nil
}

func isSharedName(name string) bool {
	return strings.HasSuffix(name, ".so") || strings.Contains(name, ".so.")
}

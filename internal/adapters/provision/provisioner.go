// Package provision installs host build prerequisites and checks for required tools.
package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sys/unix"
)

// Manager names a host package manager.
type Manager string

const (
	// ManagerApk is the Alpine package manager.
	ManagerApk Manager = "apk"
	// ManagerApt is the Debian package manager.
	ManagerApt Manager = "apt"
)

var _ ports.Provisioner = (*Provisioner)(nil)

// Provisioner implements ports.Provisioner through the host package manager.
type Provisioner struct {
	executor ports.Executor
	logger   ports.Logger
	euid     func() int
}

// NewProvisioner creates a new Provisioner.
func NewProvisioner(executor ports.Executor, logger ports.Logger) *Provisioner {
	return &Provisioner{
		executor: executor,
		logger:   logger,
		euid:     os.Geteuid,
	}
}

// Detect picks the host package manager from the executables on PATH.
func (p *Provisioner) Detect() (Manager, error) {
	if _, ok := findExecutable("apk"); ok {
		return ManagerApk, nil
	}
	if _, ok := findExecutable("apt-get"); ok {
		return ManagerApt, nil
	}
	return "", zerr.With(domain.ErrUnsupportedPackageManager, "path", os.Getenv("PATH"))
}

// Provision installs the packages spec lists for the detected package manager.
// It runs once and never retries.
func (p *Provisioner) Provision(ctx context.Context, spec domain.ProvisionSpec) error {
	manager, err := p.Detect()
	if err != nil {
		return err
	}

	var packages []string
	var commands [][]string
	switch manager {
	case ManagerApk:
		packages = spec.Apk
		commands = [][]string{append([]string{"apk", "add", "--no-cache"}, packages...)}
	case ManagerApt:
		packages = spec.Apt
		commands = [][]string{
			{"apt-get", "update"},
			append([]string{"apt-get", "install", "-y", "--no-install-recommends"}, packages...),
		}
	}

	if len(packages) == 0 {
		p.logger.Info("no " + string(manager) + " packages to install")
		return nil
	}

	p.logger.Info("installing " + strings.Join(packages, " ") + " with " + string(manager))

	sudo := p.needsSudo()
	for _, args := range commands {
		if sudo {
			args = append([]string{"sudo"}, args...)
		}
		cmd := &domain.Command{
			Target: "provision",
			Step:   "provision",
			Args:   args,
			Env:    map[string]string{"DEBIAN_FRONTEND": "noninteractive"},
		}
		if err := p.executor.Execute(ctx, cmd); err != nil {
			detail := zerr.With(zerr.With(err, "manager", string(manager)), "packages", strings.Join(packages, " "))
			return errors.Join(domain.ErrProvisionFailed, detail)
		}
	}
	return nil
}

func (p *Provisioner) needsSudo() bool {
	if p.euid() == 0 {
		return false
	}
	_, ok := findExecutable("sudo")
	return ok
}

// Verify checks that every tool is an executable on PATH and names all
// missing tools at once.
func (p *Provisioner) Verify(tools []string) error {
	var missing []string
	for _, tool := range tools {
		path, ok := findExecutable(tool)
		if !ok {
			missing = append(missing, tool)
			continue
		}
		p.logger.Debug("found " + tool + " at " + path)
	}
	if len(missing) > 0 {
		return zerr.With(domain.ErrMissingTool, "tools", strings.Join(missing, " "))
	}
	return nil
}

// findExecutable searches PATH for an executable regular file named name.
func findExecutable(name string) (string, bool) {
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			dir = "."
		}
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if unix.Access(path, unix.X_OK) == nil {
			return path, true
		}
	}
	return "", false
}

// Package config provides the pipeline configuration loader for kiln.
package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"runtime"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// SupportedVersion is the only configuration version understood by the loader.
const SupportedVersion = "1"

//go:embed default.yaml
var defaultPipeline []byte

// DefaultPipeline returns the built-in pipeline definition.
func DefaultPipeline() []byte {
	return defaultPipeline
}

var _ ports.ConfigLoader = (*Loader)(nil)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader.
func NewLoader(log ports.Logger) *Loader {
	return &Loader{Logger: log}
}

// Load reads the pipeline from path. A missing file yields the built-in
// pipeline rooted at the directory of path.
func (l *Loader) Load(path string) (*domain.Pipeline, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to resolve config path"), "path", path)
	}
	root := filepath.Dir(abs)

	data, err := os.ReadFile(abs) //nolint:gosec // path is provided by user
	switch {
	case os.IsNotExist(err):
		l.Logger.Debug("no " + filepath.Base(abs) + " found, using the built-in pipeline")
		data = defaultPipeline
	case err != nil:
		return nil, zerr.With(zerr.Wrap(err, "failed to read config file"), "path", abs)
	}

	return l.Parse(data, root)
}

// Parse decodes a pipeline definition and resolves its directories against root.
func (l *Loader) Parse(data []byte, root string) (*domain.Pipeline, error) {
	var file PipelineFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, zerr.Wrap(err, "failed to parse config file")
	}

	if file.Version != "" && file.Version != SupportedVersion {
		l.Logger.Warn("unknown config version " + file.Version + ", reading it as version " + SupportedVersion)
	}

	jobs := file.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	strip := true
	if file.Release.Strip != nil {
		strip = *file.Release.Strip
	}

	p := &domain.Pipeline{
		Root:       root,
		Staging:    domain.NewLayout(resolveDir(root, file.Staging, domain.DefaultStagingDir)),
		SourcesDir: resolveDir(root, file.Sources, domain.DefaultSourcesDir),
		Env:        file.Env,
		Jobs:       jobs,
		Provision: domain.ProvisionSpec{
			Apt:   file.Provision.Apt,
			Apk:   file.Provision.Apk,
			Tools: file.Provision.Tools,
		},
		Release: domain.ReleaseSpec{
			Dir:   resolveDir(root, file.Release.Dir, domain.DefaultReleaseDir),
			Name:  valueOr(file.Release.Name, domain.DefaultReleaseName),
			Strip: strip,
		},
		Audit: domain.AuditPolicy{
			MaxExternal: file.Audit.MaxExternal,
			Expected:    file.Audit.Expected,
		},
		Graph: domain.NewGraph(),
	}

	for i := range file.Targets {
		target, err := toTarget(&file.Targets[i])
		if err != nil {
			return nil, err
		}
		if len(target.Outputs) == 0 {
			l.Logger.Warn("target " + target.Name.String() + " declares no outputs")
		}
		if err := p.Graph.AddTarget(target); err != nil {
			return nil, err
		}
	}

	if err := p.Graph.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

func toTarget(dto *TargetDTO) (*domain.Target, error) {
	if dto.Name == "" {
		return nil, zerr.With(domain.ErrInvalidTarget, "field", "name")
	}

	system, err := domain.ParseBuildSystem(dto.System)
	if err != nil {
		return nil, zerr.With(err, "target", dto.Name)
	}

	t := &domain.Target{
		Name:             domain.NewInternedString(dto.Name),
		Dir:              valueOr(dto.Dir, dto.Name),
		System:           system,
		Bootstrap:        dto.Bootstrap,
		ConfigureCommand: dto.ConfigureCommand,
		ConfigureArgs:    dto.Configure,
		BuildCommands:    dto.Build,
		Env:              dto.Env,
		Outputs:          dto.Outputs,
		Patches:          dto.Patches,
		Artifacts:        dto.Artifacts,
		Headers:          dto.Headers,
	}
	if t.Outputs == nil {
		t.Outputs = map[string][]string{}
	}

	if dto.Source != nil {
		if dto.Source.URL == "" {
			return nil, zerr.With(zerr.With(domain.ErrInvalidTarget, "field", "source.url"), "target", dto.Name)
		}
		t.Source = domain.Source{URL: dto.Source.URL, Format: dto.Source.Format}
	}

	for i := range dto.Post {
		action, err := dto.Post[i].toDomain()
		if err != nil {
			return nil, zerr.With(err, "target", dto.Name)
		}
		t.Post = append(t.Post, action)
	}

	return t, nil
}

func resolveDir(root, dir, fallback string) string {
	dir = valueOr(dir, fallback)
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(root, dir)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

package config

import (
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// PipelineFile represents the structure of the kiln.yaml configuration file.
type PipelineFile struct {
	Version   string       `yaml:"version"`
	Staging   string       `yaml:"staging"`
	Sources   string       `yaml:"sources"`
	Jobs      int          `yaml:"jobs"`
	Env       EnvDTO       `yaml:"env"`
	Provision ProvisionDTO `yaml:"provision"`
	Release   ReleaseDTO   `yaml:"release"`
	Audit     AuditDTO     `yaml:"audit"`
	Targets   []TargetDTO  `yaml:"targets"`
}

// ProvisionDTO lists host packages and required tools.
type ProvisionDTO struct {
	Apt   []string `yaml:"apt"`
	Apk   []string `yaml:"apk"`
	Tools []string `yaml:"tools"`
}

// ReleaseDTO configures release assembly. Strip defaults to true.
type ReleaseDTO struct {
	Dir   string `yaml:"dir"`
	Name  string `yaml:"name"`
	Strip *bool  `yaml:"strip"`
}

// AuditDTO configures the dependency audit policy.
type AuditDTO struct {
	MaxExternal int      `yaml:"max_external"`
	Expected    []string `yaml:"expected"`
}

// TargetDTO represents a library target in the configuration.
type TargetDTO struct {
	Name             string              `yaml:"name"`
	Dir              string              `yaml:"dir"`
	System           string              `yaml:"system"`
	Bootstrap        [][]string          `yaml:"bootstrap"`
	ConfigureCommand []string            `yaml:"configure_command"`
	Configure        []string            `yaml:"configure"`
	Build            [][]string          `yaml:"build"`
	Env              EnvDTO              `yaml:"env"`
	Outputs          map[string][]string `yaml:"outputs"`
	Patches          []string            `yaml:"patches"`
	Post             []PostDTO           `yaml:"post"`
	Artifacts        []string            `yaml:"artifacts"`
	Headers          []string            `yaml:"headers"`
	Source           *SourceDTO          `yaml:"source"`
}

// SourceDTO names a downloadable source archive.
type SourceDTO struct {
	URL    string `yaml:"url"`
	Format string `yaml:"format"`
}

// PostDTO holds exactly one post-install action.
type PostDTO struct {
	Remove        []string      `yaml:"remove"`
	PkgConfigLibs *PkgConfigDTO `yaml:"pkgconfig_libs"`
	Copy          *CopyDTO      `yaml:"copy"`
}

// PkgConfigDTO appends linker flags to a .pc file.
type PkgConfigDTO struct {
	File string   `yaml:"file"`
	Libs []string `yaml:"libs"`
}

// CopyDTO copies a single file.
type CopyDTO struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// EnvDTO is a YAML mapping of environment overrides that keeps declaration order.
type EnvDTO []domain.EnvVar

// UnmarshalYAML decodes a mapping node pair by pair.
func (e *EnvDTO) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return zerr.With(zerr.New("env must be a mapping"), "line", value.Line)
	}

	vars := make(EnvDTO, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var key, val string
		if err := value.Content[i].Decode(&key); err != nil {
			return zerr.Wrap(err, "failed to decode env key")
		}
		if err := value.Content[i+1].Decode(&val); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to decode env value"), "key", key)
		}
		vars = append(vars, domain.EnvVar{Key: key, Value: val})
	}
	*e = vars
	return nil
}

func (p *PostDTO) toDomain() (domain.PostAction, error) {
	var actions []domain.PostAction
	if len(p.Remove) > 0 {
		actions = append(actions, domain.PostAction{Kind: domain.PostActionRemove, Globs: p.Remove})
	}
	if p.PkgConfigLibs != nil {
		actions = append(actions, domain.PostAction{
			Kind: domain.PostActionPkgConfigLibs,
			File: p.PkgConfigLibs.File,
			Libs: p.PkgConfigLibs.Libs,
		})
	}
	if p.Copy != nil {
		actions = append(actions, domain.PostAction{Kind: domain.PostActionCopy, From: p.Copy.From, To: p.Copy.To})
	}

	if len(actions) != 1 {
		return domain.PostAction{}, zerr.With(domain.ErrInvalidPostAction, "actions", len(actions))
	}
	if err := actions[0].Validate(); err != nil {
		return domain.PostAction{}, err
	}
	return actions[0], nil
}

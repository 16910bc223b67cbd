package domain

import (
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// ProvisionSpec lists what the host needs before anything can be built.
type ProvisionSpec struct {
	Apt   []string
	Apk   []string
	Tools []string
}

// ReleaseSpec controls release assembly.
type ReleaseSpec struct {
	Dir   string
	Name  string
	Strip bool
}

// AuditPolicy bounds the external dependencies a release may carry.
// A zero MaxExternal and an empty Expected list disable the respective check.
type AuditPolicy struct {
	MaxExternal int
	Expected    []string
}

// Pipeline is the ordered set of targets plus the global settings they share.
type Pipeline struct {
	Root       string
	Staging    Layout
	SourcesDir string
	Env        []EnvVar
	Jobs       int
	Provision  ProvisionSpec
	Release    ReleaseSpec
	Audit      AuditPolicy
	Graph      *Graph
}

// ResolvedTarget is a target with every substitution expanded.
// It is the only form the driver executes.
type ResolvedTarget struct {
	Name       string
	SourceDir  string
	System     BuildSystem
	Env        map[string]string
	PathPrefix []string
	Bootstrap  [][]string
	Configure  []string
	Build      [][]string
	Outputs    map[string][]string
	Patches    []string
	Post       []PostAction
}

// OutputPaths returns every declared output path in sorted order.
func (r *ResolvedTarget) OutputPaths() []string {
	var paths []string
	for _, name := range slices.Sorted(maps.Keys(r.Outputs)) {
		paths = append(paths, r.Outputs[name]...)
	}
	return paths
}

// SourceDir returns the absolute source directory of a target.
func (p *Pipeline) SourceDir(t *Target) string {
	return filepath.Join(p.SourcesDir, t.Dir)
}

// Vars returns the global substitutions.
func (p *Pipeline) Vars() map[string]string {
	return p.Staging.Vars(p.Jobs, p.Root)
}

var variablePattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// Expand replaces every ${VAR} and ${target.output} in s.
func (p *Pipeline) Expand(s string) (string, error) {
	return p.expand(s, p.Vars(), true)
}

func (p *Pipeline) expand(s string, vars map[string]string, refs bool) (string, error) {
	var firstErr error
	out := variablePattern.ReplaceAllStringFunc(s, func(m string) string {
		if firstErr != nil {
			return m
		}
		name := m[2 : len(m)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		if producer, output, ok := strings.Cut(name, "."); ok && refs {
			v, err := p.outputValue(producer, output, vars)
			if err != nil {
				firstErr = err
				return m
			}
			return v
		}
		firstErr = zerr.With(ErrUnknownSubstitution, "variable", name)
		return m
	})
	return out, firstErr
}

// outputValue joins a producer's output paths with single spaces.
// Output paths themselves may only use global variables.
func (p *Pipeline) outputValue(producer, output string, vars map[string]string) (string, error) {
	t, ok := p.Graph.Target(producer)
	if !ok {
		return "", zerr.With(ErrUnknownTarget, "reference", producer)
	}
	paths, ok := t.Outputs[output]
	if !ok {
		return "", zerr.With(ErrUnknownOutput, "output", producer+"."+output)
	}
	expanded, err := expandAll(paths, func(s string) (string, error) {
		return p.expand(s, vars, false)
	})
	if err != nil {
		return "", err
	}
	return strings.Join(expanded, " "), nil
}

// Resolve expands a target into concrete commands, environment and outputs.
// The environment holds global overrides followed by the target's own, with
// PKG_CONFIG_PATH pointing at the staging prefix unless overridden.
func (p *Pipeline) Resolve(t *Target) (*ResolvedTarget, error) {
	expand := p.Expand
	wrap := func(err error) error {
		return zerr.With(err, "target", t.Name.String())
	}

	rt := &ResolvedTarget{
		Name:       t.Name.String(),
		SourceDir:  p.SourceDir(t),
		System:     t.System,
		Env:        map[string]string{"PKG_CONFIG_PATH": p.Staging.PkgConfig()},
		PathPrefix: []string{p.Staging.Bin()},
		Outputs:    make(map[string][]string, len(t.Outputs)),
	}

	for _, scope := range [][]EnvVar{p.Env, t.Env} {
		for _, e := range scope {
			v, err := expand(e.Value)
			if err != nil {
				return nil, wrap(err)
			}
			rt.Env[e.Key] = v
		}
	}

	for _, cmd := range t.Bootstrap {
		argv, err := expandAll(cmd, expand)
		if err != nil {
			return nil, wrap(err)
		}
		rt.Bootstrap = append(rt.Bootstrap, argv)
	}

	args, err := expandAll(t.ConfigureArgs, expand)
	if err != nil {
		return nil, wrap(err)
	}
	configureCmd, err := expandAll(t.ConfigureCommand, expand)
	if err != nil {
		return nil, wrap(err)
	}
	rt.Configure = t.System.ConfigureCommand(configureCmd, p.Staging.Root, args)

	if len(t.BuildCommands) > 0 {
		for _, cmd := range t.BuildCommands {
			argv, err := expandAll(cmd, expand)
			if err != nil {
				return nil, wrap(err)
			}
			rt.Build = append(rt.Build, argv)
		}
	} else {
		rt.Build = [][]string{t.System.BuildCommand(p.Staging.Root, p.Jobs, args)}
	}

	for name, paths := range t.Outputs {
		expanded, err := expandAll(paths, expand)
		if err != nil {
			return nil, wrap(err)
		}
		rt.Outputs[name] = expanded
	}

	for _, raw := range t.Patches {
		patch, err := expand(raw)
		if err != nil {
			return nil, wrap(err)
		}
		if !filepath.IsAbs(patch) {
			patch = filepath.Join(p.Root, patch)
		}
		rt.Patches = append(rt.Patches, patch)
	}

	for i := range t.Post {
		action, err := t.Post[i].expand(expand)
		if err != nil {
			return nil, wrap(err)
		}
		if action.Kind == PostActionCopy && !filepath.IsAbs(action.From) {
			action.From = filepath.Join(rt.SourceDir, action.From)
		}
		rt.Post = append(rt.Post, action)
	}

	return rt, nil
}

package domain

import (
	"regexp"
	"slices"

	"go.trai.ch/zerr"
)

// BuildSystem identifies how a target is configured and installed.
type BuildSystem string

const (
	// BuildSystemAutotools runs ./configure followed by make install.
	BuildSystemAutotools BuildSystem = "autotools"
	// BuildSystemCMake configures into ./build and installs through cmake --build.
	BuildSystemCMake BuildSystem = "cmake"
	// BuildSystemMake has no configure step and installs through make with a PREFIX.
	BuildSystemMake BuildSystem = "make"
	// BuildSystemMeson configures into ./build and installs through ninja.
	BuildSystemMeson BuildSystem = "meson"
)

// ParseBuildSystem converts a string into a BuildSystem.
func ParseBuildSystem(s string) (BuildSystem, error) {
	switch b := BuildSystem(s); b {
	case BuildSystemAutotools, BuildSystemCMake, BuildSystemMake, BuildSystemMeson:
		return b, nil
	default:
		return "", zerr.With(ErrUnknownBuildSystem, "system", s)
	}
}

// EnvVar is a single environment override.
type EnvVar struct {
	Key   string
	Value string
}

// Source describes where a target's source tree can be downloaded from.
type Source struct {
	URL    string
	Format string
}

// Target is one external library in the pipeline.
// It is immutable once loaded.
type Target struct {
	Name             InternedString
	Dir              string
	System           BuildSystem
	Bootstrap        [][]string
	ConfigureCommand []string
	ConfigureArgs    []string
	BuildCommands    [][]string
	Env              []EnvVar
	Outputs          map[string][]string
	Patches          []string
	Post             []PostAction
	Artifacts        []string
	Headers          []string
	Source           Source
}

// Reference is a use of another target's named output, written ${target.output}.
type Reference struct {
	Target string
	Output string
}

var referencePattern = regexp.MustCompile(`\$\{([A-Za-z0-9_+-]+)\.([A-Za-z0-9_+-]+)\}`)

// References returns every output reference made by the target, de-duplicated
// and in order of first appearance.
func (t *Target) References() []Reference {
	var refs []Reference
	for _, s := range t.expandable() {
		for _, m := range referencePattern.FindAllStringSubmatch(s, -1) {
			ref := Reference{Target: m[1], Output: m[2]}
			if !slices.Contains(refs, ref) {
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

// expandable lists every field value that may contain substitutions.
func (t *Target) expandable() []string {
	var out []string
	for _, cmd := range t.Bootstrap {
		out = append(out, cmd...)
	}
	out = append(out, t.ConfigureCommand...)
	out = append(out, t.ConfigureArgs...)
	for _, cmd := range t.BuildCommands {
		out = append(out, cmd...)
	}
	for _, e := range t.Env {
		out = append(out, e.Value)
	}
	for _, a := range t.Post {
		out = append(out, a.values()...)
	}
	return out
}

package domain

import "go.trai.ch/zerr"

// PostActionKind names a post-install action.
type PostActionKind string

const (
	// PostActionRemove deletes files matching globs and asserts none remain.
	PostActionRemove PostActionKind = "remove"
	// PostActionPkgConfigLibs appends linker flags to the Libs: lines of a .pc file.
	PostActionPkgConfigLibs PostActionKind = "pkgconfig-libs"
	// PostActionCopy copies a single file, for build systems without an install rule.
	PostActionCopy PostActionKind = "copy"
)

// PostAction is a declared post-condition applied after a target installs.
type PostAction struct {
	Kind PostActionKind

	// Globs is used by remove.
	Globs []string

	// File and Libs are used by pkgconfig-libs.
	File string
	Libs []string

	// From and To are used by copy. A relative From is resolved against the
	// target's source directory.
	From string
	To   string
}

// PostResult reports what a post-install action touched.
type PostResult struct {
	Matched []string
}

// Validate checks that the fields required by the action's kind are set.
func (a *PostAction) Validate() error {
	switch a.Kind {
	case PostActionRemove:
		if len(a.Globs) == 0 {
			return zerr.With(ErrInvalidPostAction, "kind", string(a.Kind))
		}
	case PostActionPkgConfigLibs:
		if a.File == "" || len(a.Libs) == 0 {
			return zerr.With(ErrInvalidPostAction, "kind", string(a.Kind))
		}
	case PostActionCopy:
		if a.From == "" || a.To == "" {
			return zerr.With(ErrInvalidPostAction, "kind", string(a.Kind))
		}
	default:
		return zerr.With(ErrInvalidPostAction, "kind", string(a.Kind))
	}
	return nil
}

func (a *PostAction) values() []string {
	out := make([]string, 0, len(a.Globs)+len(a.Libs)+3)
	out = append(out, a.Globs...)
	out = append(out, a.File)
	out = append(out, a.Libs...)
	return append(out, a.From, a.To)
}

// expand returns a copy of the action with every value passed through fn.
func (a *PostAction) expand(fn func(string) (string, error)) (PostAction, error) {
	out := PostAction{Kind: a.Kind}
	var err error
	if out.Globs, err = expandAll(a.Globs, fn); err != nil {
		return PostAction{}, err
	}
	if out.Libs, err = expandAll(a.Libs, fn); err != nil {
		return PostAction{}, err
	}
	for _, f := range []struct {
		src string
		dst *string
	}{{a.File, &out.File}, {a.From, &out.From}, {a.To, &out.To}} {
		if *f.dst, err = fn(f.src); err != nil {
			return PostAction{}, err
		}
	}
	return out, nil
}

func expandAll(in []string, fn func(string) (string, error)) ([]string, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		v, err := fn(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

package domain

import "path/filepath"

// ArtifactSet is an assembled release tree.
type ArtifactSet struct {
	Root     string
	Platform Platform
	// Members holds the sorted slash-separated paths of every file below Root.
	Members []string
}

// RuntimeDir returns the directory holding shared objects under their SONAME.
func (a *ArtifactSet) RuntimeDir() string {
	return filepath.Join(a.Root, "bin", a.Platform.Dir())
}

// LinkDir returns the directory holding the linkable library files.
func (a *ArtifactSet) LinkDir() string {
	return filepath.Join(a.Root, "lib", "external", a.Platform.Dir())
}

// IncludeDir returns the header directory.
func (a *ArtifactSet) IncludeDir() string {
	return filepath.Join(a.Root, "include")
}

package domain

import (
	"path/filepath"
	"strconv"
)

const (
	// KilnDirName is the name of the private state directory inside the staging prefix.
	KilnDirName = ".kiln"

	// StateFileName is the name of the build record file.
	StateFileName = "state.json"

	// JournalFileName is the name of the progress journal of the last run.
	JournalFileName = "progress.jsonl"

	// ConfigFileName is the name of the pipeline configuration file.
	ConfigFileName = "kiln.yaml"

	// DefaultStagingDir is the staging prefix used when the pipeline does not name one.
	DefaultStagingDir = "install"

	// DefaultSourcesDir is the directory holding the library source trees.
	DefaultSourcesDir = "repos"

	// DefaultReleaseDir is the directory the release is assembled in.
	DefaultReleaseDir = "release"

	// DefaultReleaseName is the base name of the release archive.
	DefaultReleaseName = "release"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// Layout is the staging prefix every target installs into.
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// Include returns the header directory.
func (l Layout) Include() string { return filepath.Join(l.Root, "include") }

// Lib returns the library directory.
func (l Layout) Lib() string { return filepath.Join(l.Root, "lib") }

// PkgConfig returns the pkg-config metadata directory.
func (l Layout) PkgConfig() string { return filepath.Join(l.Root, "lib", "pkgconfig") }

// Bin returns the executable directory.
func (l Layout) Bin() string { return filepath.Join(l.Root, "bin") }

// Share returns the data directory.
func (l Layout) Share() string { return filepath.Join(l.Root, "share") }

// StateDir returns the private state directory.
func (l Layout) StateDir() string { return filepath.Join(l.Root, KilnDirName) }

// StatePath returns the build record file.
func (l Layout) StatePath() string { return filepath.Join(l.Root, KilnDirName, StateFileName) }

// JournalPath returns the progress journal of the last run.
func (l Layout) JournalPath() string { return filepath.Join(l.Root, KilnDirName, JournalFileName) }

// Dirs returns every directory the layout consists of.
func (l Layout) Dirs() []string {
	return []string{l.Include(), l.Lib(), l.PkgConfig(), l.Bin(), l.Share(), l.StateDir()}
}

// Vars returns the global substitutions for the layout.
func (l Layout) Vars(jobs int, top string) map[string]string {
	return map[string]string{
		"INSTALLDIR":   l.Root,
		"INCDIR":       l.Include(),
		"LIBDIR":       l.Lib(),
		"PKGCONFIGDIR": l.PkgConfig(),
		"BINDIR":       l.Bin(),
		"JOBS":         strconv.Itoa(jobs),
		"TOP":          top,
	}
}

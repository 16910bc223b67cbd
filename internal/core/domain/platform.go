package domain

import "runtime"

// Platform names the operating system and architecture a release is built for.
type Platform struct {
	OS   string
	Arch string
}

// HostPlatform returns the platform kiln is running on.
func HostPlatform() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// ArchName returns the conventional machine name of the architecture.
func (p Platform) ArchName() string {
	switch p.Arch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	default:
		return p.Arch
	}
}

// Qualifier returns the archive suffix, e.g. linux-x86_64.
func (p Platform) Qualifier() string {
	return p.OS + "-" + p.ArchName()
}

// Dir returns the per-platform directory name used inside a release,
// e.g. linux64 for linux on amd64.
func (p Platform) Dir() string {
	switch p.Arch {
	case "amd64":
		return p.OS + "64"
	case "386":
		return p.OS + "32"
	default:
		return p.Qualifier()
	}
}

// ArchiveName returns the release archive file name for base.
func (p Platform) ArchiveName(base string) string {
	return base + "-" + p.Qualifier() + ".tar.gz"
}

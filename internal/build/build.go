// Package build holds build-time information.
package build

// These default to development values and are overwritten by linker flags:
//
//	-ldflags "-X go.trai.ch/kiln/internal/build.Version=v1.2.0 -X go.trai.ch/kiln/internal/build.Commit=abc1234"
var (
	// Version is the application version.
	Version = "dev"
	// Commit is the git revision the binary was built from.
	Commit = "none"
	// Date is the build date in RFC 3339 format.
	Date = "unknown"
)

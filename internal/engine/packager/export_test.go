package packager

import "go.trai.ch/kiln/internal/core/domain"

// SetPlatform overrides the platform the release is assembled for.
// This is exported for testing purposes only.
func (pk *Packager) SetPlatform(p domain.Platform) {
	pk.platform = p
}

package fs

import (
	"os"

	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Verifier = (*Verifier)(nil)

// Verifier provides functionality to verify the existence of files.
type Verifier struct{}

// NewVerifier creates a new Verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// VerifyOutputs returns the paths that do not exist, in input order.
func (v *Verifier) VerifyOutputs(paths []string) ([]string, error) {
	var missing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				missing = append(missing, path)
				continue
			}
			return nil, zerr.With(zerr.Wrap(err, "failed to stat output"), "path", path)
		}
	}
	return missing, nil
}

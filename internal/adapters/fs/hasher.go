package fs

import (
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Hasher = (*Hasher)(nil)

// Hasher provides hashing functionality for targets and files.
type Hasher struct{}

// NewHasher creates a new Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// ComputeFileHash computes the XXHash of a file's content.
func (h *Hasher) ComputeFileHash(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to hash file content"), "path", path)
	}

	return hasher.Sum64(), nil
}

// ComputeInputHash computes a single hash over the resolved commands,
// environment, outputs, post actions and patch contents of a target.
func (h *Hasher) ComputeInputHash(t *domain.ResolvedTarget) (string, error) {
	hasher := xxhash.New()

	writeField(hasher, t.Name, t.SourceDir, string(t.System))
	for _, cmd := range t.Bootstrap {
		writeField(hasher, cmd...)
	}
	writeField(hasher, t.Configure...)
	for _, cmd := range t.Build {
		writeField(hasher, cmd...)
	}

	for _, k := range slices.Sorted(maps.Keys(t.Env)) {
		writeField(hasher, k+"="+t.Env[k])
	}

	for _, name := range slices.Sorted(maps.Keys(t.Outputs)) {
		writeField(hasher, append([]string{name}, t.Outputs[name]...)...)
	}

	for _, a := range t.Post {
		writeField(hasher, string(a.Kind), a.File, a.From, a.To)
		writeField(hasher, a.Globs...)
		writeField(hasher, a.Libs...)
	}

	for _, patch := range t.Patches {
		sum, err := h.ComputeFileHash(patch)
		if err != nil {
			return "", err
		}
		writeField(hasher, patch)
		if err := binary.Write(hasher, binary.LittleEndian, sum); err != nil {
			return "", zerr.Wrap(err, "failed to write hash to digest")
		}
	}

	return fmt.Sprintf("%016x", hasher.Sum64()), nil
}

// writeField writes values separated by NUL and terminated by a section separator.
func writeField(hasher *xxhash.Digest, values ...string) {
	for _, v := range values {
		_, _ = hasher.WriteString(v)
		_, _ = hasher.Write([]byte{0})
	}
	_, _ = hasher.Write([]byte{0})
}

// ComputeOutputHash computes the hash of the given files. Directories
// contribute only their path.
func (h *Hasher) ComputeOutputHash(paths []string) (string, error) {
	sorted := slices.Clone(paths)
	slices.Sort(sorted)

	hasher := xxhash.New()

	for _, path := range sorted {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return "", zerr.With(zerr.Wrap(err, "output file missing"), "path", path)
			}
			return "", zerr.With(zerr.Wrap(err, "failed to stat output file"), "path", path)
		}

		writeField(hasher, path)
		if info.IsDir() {
			continue
		}

		sum, err := h.ComputeFileHash(path)
		if err != nil {
			return "", err
		}
		if err := binary.Write(hasher, binary.LittleEndian, sum); err != nil {
			return "", zerr.Wrap(err, "failed to write hash to digest")
		}
	}

	return fmt.Sprintf("%016x", hasher.Sum64()), nil
}

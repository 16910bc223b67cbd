package fs_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/fs"
)

func TestVerifier_VerifyOutputs(t *testing.T) {
	tmpDir := t.TempDir()
	verifier := fs.NewVerifier()

	out1 := filepath.Join(tmpDir, "libz.a")
	out2 := filepath.Join(tmpDir, "libbz2.a")
	writeFile(t, out1, "content")
	writeFile(t, out2, "content")

	missing, err := verifier.VerifyOutputs([]string{out1, out2})
	require.NoError(t, err)
	assert.Empty(t, missing)

	absent := filepath.Join(tmpDir, "libpng.a")
	missing, err = verifier.VerifyOutputs([]string{out1, absent, out2})
	require.NoError(t, err)
	assert.Equal(t, []string{absent}, missing)

	missing, err = verifier.VerifyOutputs(nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

package elf_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/elf"
	"go.trai.ch/kiln/internal/core/domain"
)

// findSystemLibrary returns a shared C library present on the host.
func findSystemLibrary(t *testing.T) string {
	t.Helper()
	for _, pattern := range []string{
		"/lib/x86_64-linux-gnu/libm.so.6",
		"/lib/aarch64-linux-gnu/libm.so.6",
		"/usr/lib/x86_64-linux-gnu/libm.so.6",
		"/usr/lib64/libm.so.6",
		"/lib64/libm.so.6",
		"/usr/lib/libm.so.6",
	} {
		if _, err := os.Stat(pattern); err == nil {
			return pattern
		}
	}
	t.Skip("no shared libm found on host")
	return ""
}

func TestInspector_Inspect_SharedObject(t *testing.T) {
	path := findSystemLibrary(t)

	obj, err := elf.NewInspector().Inspect(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Base(path), obj.Name)
	assert.Equal(t, "libm.so.6", obj.SONAME)
	assert.True(t, slices.Contains(obj.Needed, "libc.so.6"), "libm needs libc, got %v", obj.Needed)
}

func TestInspector_Inspect_Executable(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	obj, err := elf.NewInspector().Inspect(exe)
	require.NoError(t, err)
	assert.NotNil(t, obj.Needed)
}

func TestInspector_Inspect_NotELF(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"linker script", "/* GNU ld script */\nGROUP ( /lib/libc.so.6 /usr/lib/libc_nonshared.a )\n"},
		{"short file", "!<a"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "libc.so")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := elf.NewInspector().Inspect(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrNotELF))
		})
	}
}

func TestInspector_Inspect_Missing(t *testing.T) {
	_, err := elf.NewInspector().Inspect(filepath.Join(t.TempDir(), "libmissing.so"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotELF))
	assert.ErrorContains(t, err, "failed to open file")
}

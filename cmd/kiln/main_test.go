package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/app"
)

func discardOutput(a *app.App) {
	a.WithOutput(io.Discard)
}

func TestRun(t *testing.T) {
	tests := []struct {
		name         string
		config       string
		args         []string
		expectedExit int
	}{
		{
			name: "Success with valid config",
			config: `version: "1"
targets:
  - name: hello
    system: make
    build:
      - [sh, -c, 'echo hello > "$OUT"']
    env:
      OUT: ${LIBDIR}/hello.a
    outputs:
      lib:
        - ${LIBDIR}/hello.a
`,
			args:         []string{"--skip-release"},
			expectedExit: 0,
		},
		{
			name: "Failing build",
			config: `version: "1"
targets:
  - name: hello
    system: make
    build:
      - [sh, -c, "exit 2"]
`,
			args:         []string{"--skip-release", "-q"},
			expectedExit: 1,
		},
		{
			name:         "Invalid config",
			config:       "targets: [\n",
			args:         []string{"status"},
			expectedExit: 1,
		},
		{
			name:         "Unknown command",
			config:       `version: "1"`,
			args:         []string{"bake"},
			expectedExit: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "kiln.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.config), 0o600))
			require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "repos", "hello"), 0o750))

			args := append([]string{"-c", configPath}, tt.args...)
			assert.Equal(t, tt.expectedExit, run(args, discardOutput))
		})
	}
}

func TestRun_Version(t *testing.T) {
	assert.Equal(t, 0, run([]string{"version"}, discardOutput))
}

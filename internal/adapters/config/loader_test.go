package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/config"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

func newLoader(t *testing.T) (*config.Loader, *mocks.MockLogger) {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	return config.NewLoader(log), log
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), domain.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func targetNames(p *domain.Pipeline) []string {
	var names []string
	for target := range p.Graph.Walk() {
		names = append(names, target.Name.String())
	}
	return names
}

func TestLoad_Success(t *testing.T) {
	path := writeConfig(t, `
version: "1"
staging: out
jobs: 3
env:
  PKG_CONFIG: pkg-config --static
  CC: gcc
release:
  strip: false
audit:
  max_external: 4
  expected: [libc.so.6]
targets:
  - name: libpng
    system: autotools
    configure: [--disable-shared]
    env:
      LIBS: ${zlib.lib}
      CFLAGS: -fPIC
    post:
      - remove: ["${LIBDIR}/libpng*.so*"]
      - pkgconfig_libs:
          file: ${PKGCONFIGDIR}/libpng.pc
          libs: [-lz, -lm]
    outputs:
      lib: ["${LIBDIR}/libpng.a"]
  - name: zlib
    dir: third_party/zlib
    system: autotools
    outputs:
      lib: ["${LIBDIR}/libz.a"]
    source:
      url: https://zlib.net/zlib-1.3.1.tar.gz
`)
	loader, _ := newLoader(t)

	p, err := loader.Load(path)
	require.NoError(t, err)

	root := filepath.Dir(path)
	assert.Equal(t, root, p.Root)
	assert.Equal(t, filepath.Join(root, "out"), p.Staging.Root)
	assert.Equal(t, filepath.Join(root, domain.DefaultSourcesDir), p.SourcesDir)
	assert.Equal(t, 3, p.Jobs)
	assert.Equal(t, []domain.EnvVar{
		{Key: "PKG_CONFIG", Value: "pkg-config --static"},
		{Key: "CC", Value: "gcc"},
	}, p.Env)
	assert.Equal(t, domain.ReleaseSpec{
		Dir:  filepath.Join(root, domain.DefaultReleaseDir),
		Name: domain.DefaultReleaseName,
	}, p.Release)
	assert.Equal(t, domain.AuditPolicy{MaxExternal: 4, Expected: []string{"libc.so.6"}}, p.Audit)

	// zlib is moved ahead of its consumer.
	assert.Equal(t, []string{"zlib", "libpng"}, targetNames(p))

	zlib, ok := p.Graph.Target("zlib")
	require.True(t, ok)
	assert.Equal(t, "third_party/zlib", zlib.Dir)
	assert.Equal(t, "https://zlib.net/zlib-1.3.1.tar.gz", zlib.Source.URL)

	libpng, ok := p.Graph.Target("libpng")
	require.True(t, ok)
	assert.Equal(t, "libpng", libpng.Dir)
	want := []domain.PostAction{
		{Kind: domain.PostActionRemove, Globs: []string{"${LIBDIR}/libpng*.so*"}},
		{Kind: domain.PostActionPkgConfigLibs, File: "${PKGCONFIGDIR}/libpng.pc", Libs: []string{"-lz", "-lm"}},
	}
	if diff := cmp.Diff(want, libpng.Post); diff != "" {
		t.Errorf("post actions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_DefaultPipeline(t *testing.T) {
	loader, log := newLoader(t)
	log.EXPECT().Debug(gomock.Any()).Times(1)

	dir := t.TempDir()
	p, err := loader.Load(filepath.Join(dir, domain.ConfigFileName))
	require.NoError(t, err)

	want := []string{
		"zlib", "bzip2", "brotli", "libpng", "freetype",
		"libexpat", "json-c", "fontconfig", "pixman", "cairo",
	}
	if diff := cmp.Diff(want, targetNames(p)); diff != "" {
		t.Errorf("target order mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, dir, p.Root)
	assert.Equal(t, filepath.Join(dir, "install"), p.Staging.Root)
	assert.Equal(t, runtime.NumCPU(), p.Jobs)
	assert.True(t, p.Release.Strip)
	assert.Contains(t, p.Provision.Tools, "chrpath")

	// Every target resolves against the built-in layout.
	for target := range p.Graph.Walk() {
		_, err := p.Resolve(&target)
		require.NoError(t, err, "target %s", target.Name)
	}

	freetype, ok := p.Graph.Target("freetype")
	require.True(t, ok)
	rt, err := p.Resolve(&freetype)
	require.NoError(t, err)
	lib := p.Staging.Lib()
	assert.Equal(t,
		filepath.Join(lib, "libpng.a")+" "+filepath.Join(lib, "libbz2.a")+" "+filepath.Join(lib, "libz.a")+" -lm",
		rt.Env["LIBPNG_LIBS"])
}

func TestLoad_UnknownVersionWarns(t *testing.T) {
	path := writeConfig(t, `
version: "2"
targets:
  - name: zlib
    system: autotools
    outputs:
      lib: ["${LIBDIR}/libz.a"]
`)
	loader, log := newLoader(t)
	log.EXPECT().Warn(gomock.Any()).Times(1)

	_, err := loader.Load(path)
	require.NoError(t, err)
}

func TestLoad_NoOutputsWarns(t *testing.T) {
	path := writeConfig(t, `
targets:
  - name: zlib
    system: autotools
`)
	loader, log := newLoader(t)
	log.EXPECT().Warn("target zlib declares no outputs").Times(1)

	_, err := loader.Load(path)
	require.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
		key     string
		value   any
	}{
		{
			name: "invalid yaml",
			content: `
targets:
  - name: zlib
    configure: ["--static"  # Unclosed list
`,
			wantErr: "failed to parse config file",
		},
		{
			name: "missing name",
			content: `
targets:
  - system: autotools
`,
			wantErr: domain.ErrInvalidTarget.Error(),
			key:     "field",
			value:   "name",
		},
		{
			name: "unknown build system",
			content: `
targets:
  - name: zlib
    system: scons
`,
			wantErr: domain.ErrUnknownBuildSystem.Error(),
			key:     "target",
			value:   "zlib",
		},
		{
			name: "duplicate target",
			content: `
targets:
  - name: zlib
    system: autotools
    outputs: {lib: [libz.a]}
  - name: zlib
    system: cmake
    outputs: {lib: [libz.a]}
`,
			wantErr: domain.ErrTargetAlreadyExists.Error(),
			key:     "target",
			value:   "zlib",
		},
		{
			name: "unknown output reference",
			content: `
targets:
  - name: zlib
    system: autotools
    outputs: {lib: [libz.a]}
  - name: libpng
    system: autotools
    outputs: {lib: [libpng.a]}
    env:
      LIBS: ${zlib.shared}
`,
			wantErr: domain.ErrUnknownOutput.Error(),
			key:     "output",
			value:   "zlib.shared",
		},
		{
			name: "ambiguous post action",
			content: `
targets:
  - name: zlib
    system: autotools
    outputs: {lib: [libz.a]}
    post:
      - remove: ["*.so"]
        copy: {from: a, to: b}
`,
			wantErr: domain.ErrInvalidPostAction.Error(),
			key:     "target",
			value:   "zlib",
		},
		{
			name: "env is not a mapping",
			content: `
env: [CC=gcc]
`,
			wantErr: "env must be a mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			loader, log := newLoader(t)
			log.EXPECT().Warn(gomock.Any()).AnyTimes()

			_, err := loader.Load(path)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)

			if tt.key == "" {
				return
			}
			zErr, ok := err.(*zerr.Error)
			require.True(t, ok, "expected *zerr.Error, got %T", err)
			assert.Equal(t, tt.value, zErr.Metadata()[tt.key])
		})
	}
}

func TestLoad_ReadError(t *testing.T) {
	loader, _ := newLoader(t)

	// A directory cannot be read as a file.
	_, err := loader.Load(t.TempDir())
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestDefaultPipeline_IsEmbedded(t *testing.T) {
	assert.Contains(t, string(config.DefaultPipeline()), "name: cairo")
}

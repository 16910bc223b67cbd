package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/archive"
	"go.trai.ch/kiln/internal/adapters/cas"
	"go.trai.ch/kiln/internal/adapters/config"
	"go.trai.ch/kiln/internal/adapters/elf"
	"go.trai.ch/kiln/internal/adapters/fetch"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/adapters/logger"
	"go.trai.ch/kiln/internal/adapters/provision"
	"go.trai.ch/kiln/internal/adapters/shell"
	"go.trai.ch/kiln/internal/adapters/telemetry/progrock"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/auditor"
	"go.trai.ch/kiln/internal/engine/driver"
	"go.trai.ch/kiln/internal/engine/packager"
	"go.uber.org/mock/gomock"
)

// newApp wires the real adapters. A nil provisioner selects the host one.
func newApp(t *testing.T, provisioner ports.Provisioner) (*app.App, *bytes.Buffer) {
	t.Helper()
	log := logger.New()
	log.SetOutput(io.Discard)

	executor := shell.NewExecutor(log)
	if provisioner == nil {
		provisioner = provision.NewProvisioner(executor, log)
	}
	resolver := fs.NewResolver()
	post := fs.NewPostRunner(resolver)
	inspector := elf.NewInspector()
	recorder := progrock.New()
	t.Cleanup(func() { _ = recorder.Close() })

	drv := driver.New(executor, fs.NewHasher(), cas.NewStore(), fs.NewVerifier(), fs.NewWalker(),
		post, fetch.NewFetcher(nil, log), recorder, log)
	aud := auditor.New(inspector, log)
	pkg := packager.New(inspector, post, executor, archive.NewArchiver(), log)

	var out bytes.Buffer
	a := app.New(config.NewLoader(log), provisioner, executor, drv, aud, pkg, recorder, progrock.NewRunLog(), log).
		WithOutput(&out)
	return a, &out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

const pipelineYAML = `version: "1"
jobs: 2
provision:
  tools: [sh]
release:
  strip: false
targets:
  - name: zlib
    system: make
    build:
      - [sh, build.sh]
    env:
      LIBDIR: ${LIBDIR}
      INCDIR: ${INCDIR}
    outputs:
      lib:
        - ${LIBDIR}/libz.a
    artifacts: [libz.a]
    headers: [zlib.h]
  - name: libpng
    system: autotools
    configure_command: [sh, configure.sh]
    build:
      - [sh, build.sh]
    env:
      LIBDIR: ${LIBDIR}
      ZLIB_LIBS: ${zlib.lib}
      MARKER: ${TOP}/libpng.built
    outputs:
      lib:
        - ${LIBDIR}/libpng.a
`

// newProject lays out a pipeline whose targets are plain sh scripts.
func newProject(t *testing.T, libpngConfigure string) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, domain.ConfigFileName), pipelineYAML)

	writeFile(t, filepath.Join(root, "repos", "zlib", "build.sh"), `set -e
echo zlib > "$LIBDIR/libz.a"
echo '#define ZLIB_VERSION "1.3"' > "$INCDIR/zlib.h"
`)
	writeFile(t, filepath.Join(root, "repos", "libpng", "configure.sh"), libpngConfigure)
	writeFile(t, filepath.Join(root, "repos", "libpng", "build.sh"), `set -e
test -f "$ZLIB_LIBS"
echo png > "$LIBDIR/libpng.a"
touch "$MARKER"
`)
	return root
}

func TestApp_Run(t *testing.T) {
	root := newProject(t, "exit 0\n")
	a, out := newApp(t, nil)
	configPath := filepath.Join(root, domain.ConfigFileName)

	require.NoError(t, a.Run(context.Background(), configPath, app.RunOptions{}))

	staging := domain.NewLayout(filepath.Join(root, domain.DefaultStagingDir))
	assert.FileExists(t, filepath.Join(staging.Lib(), "libz.a"))
	assert.FileExists(t, filepath.Join(staging.Lib(), "libpng.a"))
	assert.FileExists(t, staging.StatePath())
	assert.FileExists(t, filepath.Join(root, "libpng.built"))

	release := filepath.Join(root, domain.DefaultReleaseDir)
	assert.FileExists(t, filepath.Join(release, "include", "zlib.h"))
	assert.FileExists(t, filepath.Join(root, domain.HostPlatform().ArchiveName(domain.DefaultReleaseName)))

	require.NoError(t, a.Status(context.Background(), configPath))
	assert.Contains(t, out.String(), "TARGET")
	assert.Contains(t, out.String(), "LAST RUN")
	assert.Regexp(t, `zlib\s+built\s+\S+ \S+\s+ok in `, out.String())
	assert.Regexp(t, `libpng\s+built\s+\S+ \S+\s+ok in `, out.String())
}

func TestApp_Run_StopsAtConfigureFailure(t *testing.T) {
	root := newProject(t, "echo 'checking for zlib... no' >&2\nexit 1\n")
	a, _ := newApp(t, nil)

	err := a.Run(context.Background(), filepath.Join(root, domain.ConfigFileName), app.RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPipelineFailed)
	assert.ErrorIs(t, err, domain.ErrConfigureFailed)
	assert.ErrorContains(t, err, "command failed")

	assert.FileExists(t, filepath.Join(root, domain.DefaultStagingDir, "lib", "libz.a"))
	assert.NoFileExists(t, filepath.Join(root, "libpng.built"))
	assert.NoDirExists(t, filepath.Join(root, domain.DefaultReleaseDir))
}

func TestApp_Status_ShowsLastRunFailure(t *testing.T) {
	root := newProject(t, "echo 'checking for zlib... no' >&2\nexit 1\n")
	a, out := newApp(t, nil)
	configPath := filepath.Join(root, domain.ConfigFileName)

	require.Error(t, a.Run(context.Background(), configPath, app.RunOptions{}))
	assert.FileExists(t, filepath.Join(root, domain.DefaultStagingDir, domain.KilnDirName, domain.JournalFileName))

	require.NoError(t, a.Status(context.Background(), configPath))
	assert.Regexp(t, `zlib\s+built\s+\S+ \S+\s+ok in `, out.String())
	assert.Regexp(t, `libpng\s+pending\s+-\s+failed: checking for zlib\.\.\. no`, out.String())
}

func TestApp_Status_WithoutJournal(t *testing.T) {
	root := newProject(t, "exit 0\n")
	a, out := newApp(t, nil)

	require.NoError(t, a.Status(context.Background(), filepath.Join(root, domain.ConfigFileName)))
	assert.Regexp(t, `zlib\s+pending\s+-\s+-`, out.String())
	assert.Regexp(t, `libpng\s+pending\s+-\s+-`, out.String())
}

func TestApp_Run_Status(t *testing.T) {
	root := newProject(t, "exit 0\n")
	a, out := newApp(t, nil)
	configPath := filepath.Join(root, domain.ConfigFileName)

	require.NoError(t, a.Run(context.Background(), configPath, app.RunOptions{SkipRelease: true}))
	assert.NoDirExists(t, filepath.Join(root, domain.DefaultReleaseDir))

	require.NoError(t, os.Remove(filepath.Join(root, domain.DefaultStagingDir, "lib", "libpng.a")))
	require.NoError(t, a.Status(context.Background(), configPath))
	assert.Regexp(t, `zlib\s+built`, out.String())
	assert.Regexp(t, `libpng\s+broken \(1 missing\)`, out.String())
}

func TestApp_Run_ProvisionFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	provisioner := mocks.NewMockProvisioner(ctrl)
	provisioner.EXPECT().Provision(gomock.Any(), gomock.Any()).
		Return(errors.Join(domain.ErrProvisionFailed, errors.New("apt-get exited 100")))

	root := newProject(t, "exit 0\n")
	a, _ := newApp(t, provisioner)

	err := a.Run(context.Background(), filepath.Join(root, domain.ConfigFileName), app.RunOptions{Provision: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPipelineFailed)
	assert.ErrorIs(t, err, domain.ErrProvisionFailed)
	assert.NoDirExists(t, filepath.Join(root, domain.DefaultStagingDir))
}

func TestApp_Run_MissingTool(t *testing.T) {
	ctrl := gomock.NewController(t)
	provisioner := mocks.NewMockProvisioner(ctrl)
	provisioner.EXPECT().Verify([]string{"sh"}).Return(errors.Join(domain.ErrMissingTool, errors.New("sh")))

	root := newProject(t, "exit 0\n")
	a, _ := newApp(t, provisioner)

	err := a.Run(context.Background(), filepath.Join(root, domain.ConfigFileName), app.RunOptions{})
	assert.ErrorIs(t, err, domain.ErrMissingTool)
}

func TestApp_Run_ConfigLoaderError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, domain.ConfigFileName), "targets: [\n")
	a, _ := newApp(t, nil)

	err := a.Run(context.Background(), filepath.Join(root, domain.ConfigFileName), app.RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPipelineFailed)
	assert.ErrorContains(t, err, "failed to load configuration")
}

func TestApp_Provision(t *testing.T) {
	ctrl := gomock.NewController(t)
	provisioner := mocks.NewMockProvisioner(ctrl)
	gomock.InOrder(
		provisioner.EXPECT().Provision(gomock.Any(), gomock.Any()).Return(nil),
		provisioner.EXPECT().Verify([]string{"sh"}).Return(nil),
	)

	root := newProject(t, "exit 0\n")
	a, _ := newApp(t, provisioner)
	require.NoError(t, a.Provision(context.Background(), filepath.Join(root, domain.ConfigFileName)))
}

func TestApp_Package_RequiresStaging(t *testing.T) {
	root := newProject(t, "exit 0\n")
	a, _ := newApp(t, nil)

	err := a.Package(context.Background(), filepath.Join(root, domain.ConfigFileName), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrArtifactMissing)
}

// systemLibrary returns a shared object from the host, skipping if none is found.
func systemLibrary(t *testing.T) string {
	t.Helper()
	for _, path := range []string{
		"/lib/x86_64-linux-gnu/libm.so.6",
		"/usr/lib/x86_64-linux-gnu/libm.so.6",
		"/lib/aarch64-linux-gnu/libm.so.6",
		"/usr/lib64/libm.so.6",
		"/lib64/libm.so.6",
	} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	t.Skip("no system shared library found")
	return ""
}

func TestApp_Audit(t *testing.T) {
	lib := systemLibrary(t)
	data, err := os.ReadFile(lib)
	require.NoError(t, err)

	root := newProject(t, "exit 0\n")
	dir := filepath.Join(root, "audit")
	writeFile(t, filepath.Join(dir, "libm.so.6"), string(data))
	writeFile(t, filepath.Join(dir, "notes.so.txt"), "not an object")

	a, out := newApp(t, nil)
	configPath := filepath.Join(root, domain.ConfigFileName)
	require.NoError(t, a.Audit(context.Background(), configPath, dir, app.AuditOptions{JSON: true}))

	var report domain.DependencyReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Contains(t, report.Objects, "libm.so.6")
	assert.NotContains(t, report.External, "libm.so.6")

	out.Reset()
	require.NoError(t, a.Audit(context.Background(), configPath, dir, app.AuditOptions{}))
	assert.Contains(t, out.String(), "external dependencies")
}

func TestApp_Clean(t *testing.T) {
	root := newProject(t, "exit 0\n")
	a, _ := newApp(t, nil)
	configPath := filepath.Join(root, domain.ConfigFileName)

	require.NoError(t, a.Run(context.Background(), configPath, app.RunOptions{}))
	require.NoError(t, a.Clean(context.Background(), configPath, true))

	assert.NoDirExists(t, filepath.Join(root, domain.DefaultStagingDir))
	assert.NoDirExists(t, filepath.Join(root, domain.DefaultReleaseDir))
	assert.NoFileExists(t, filepath.Join(root, domain.HostPlatform().ArchiveName(domain.DefaultReleaseName)))
	assert.FileExists(t, filepath.Join(root, "repos", "zlib", "build.sh"))
}

package provision_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/provision"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

// fakePath creates executables named tools in a fresh directory and makes it the only PATH entry.
func fakePath(t *testing.T, tools ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, tool := range tools {
		require.NoError(t, os.WriteFile(filepath.Join(dir, tool), []byte("#!/bin/sh\nexit 0\n"), 0o700)) //nolint:gosec // Executable test script
	}
	t.Setenv("PATH", dir)
	return dir
}

var spec = domain.ProvisionSpec{
	Apt: []string{"build-essential", "chrpath"},
	Apk: []string{"build-base", "chrpath"},
}

func TestProvisioner_Detect(t *testing.T) {
	tests := []struct {
		name  string
		tools []string
		want  provision.Manager
	}{
		{"apk", []string{"apk"}, provision.ManagerApk},
		{"apt", []string{"apt-get"}, provision.ManagerApt},
		{"apk preferred", []string{"apt-get", "apk"}, provision.ManagerApk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakePath(t, tt.tools...)
			p := provision.NewProvisioner(nil, nil)

			got, err := p.Detect()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProvisioner_Detect_Unsupported(t *testing.T) {
	fakePath(t, "pacman")

	_, err := provision.NewProvisioner(nil, nil).Detect()
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrUnsupportedPackageManager.Error())
}

func TestProvisioner_Provision_Apt(t *testing.T) {
	fakePath(t, "apt-get", "sudo")

	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()

	var got [][]string
	exec.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cmd *domain.Command) error {
		got = append(got, cmd.Args)
		assert.Equal(t, "noninteractive", cmd.Env["DEBIAN_FRONTEND"])
		return nil
	}).Times(2)

	p := provision.NewProvisioner(exec, log)
	p.SetEUID(func() int { return 1000 })

	require.NoError(t, p.Provision(context.Background(), spec))
	assert.Equal(t, [][]string{
		{"sudo", "apt-get", "update"},
		{"sudo", "apt-get", "install", "-y", "--no-install-recommends", "build-essential", "chrpath"},
	}, got)
}

func TestProvisioner_Provision_ApkAsRoot(t *testing.T) {
	fakePath(t, "apk", "sudo")

	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()

	exec.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cmd *domain.Command) error {
		assert.Equal(t, []string{"apk", "add", "--no-cache", "build-base", "chrpath"}, cmd.Args)
		return nil
	}).Times(1)

	p := provision.NewProvisioner(exec, log)
	p.SetEUID(func() int { return 0 })

	require.NoError(t, p.Provision(context.Background(), spec))
}

func TestProvisioner_Provision_NoSudo(t *testing.T) {
	fakePath(t, "apk")

	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()

	exec.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cmd *domain.Command) error {
		assert.Equal(t, "apk", cmd.Args[0])
		return nil
	})

	p := provision.NewProvisioner(exec, log)
	p.SetEUID(func() int { return 1000 })

	require.NoError(t, p.Provision(context.Background(), spec))
}

func TestProvisioner_Provision_Failure(t *testing.T) {
	fakePath(t, "apt-get")

	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()

	// update fails; install is never attempted and nothing is retried.
	exec.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(errors.New("exit status 100")).Times(1)

	p := provision.NewProvisioner(exec, log)
	p.SetEUID(func() int { return 0 })

	err := p.Provision(context.Background(), spec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProvisionFailed))

	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok)
	zErr, ok := joined.Unwrap()[1].(*zerr.Error)
	require.True(t, ok, "expected *zerr.Error, got %T", joined.Unwrap()[1])
	assert.Equal(t, "apt", zErr.Metadata()["manager"])
	assert.Equal(t, "build-essential chrpath", zErr.Metadata()["packages"])
}

func TestProvisioner_Provision_NothingToInstall(t *testing.T) {
	fakePath(t, "apk")

	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info("no apk packages to install")

	p := provision.NewProvisioner(exec, log)
	require.NoError(t, p.Provision(context.Background(), domain.ProvisionSpec{Apt: []string{"cmake"}}))
}

func TestProvisioner_Verify(t *testing.T) {
	dir := fakePath(t, "gcc", "make")
	// A present but non-executable file does not count.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meson"), []byte("not a tool"), 0o600))

	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()

	p := provision.NewProvisioner(nil, log)

	require.NoError(t, p.Verify([]string{"gcc", "make"}))

	err := p.Verify([]string{"gcc", "meson", "chrpath"})
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrMissingTool.Error())

	zErr, ok := err.(*zerr.Error)
	require.True(t, ok, "expected *zerr.Error, got %T", err)
	assert.Equal(t, "meson chrpath", zErr.Metadata()["tools"])
}

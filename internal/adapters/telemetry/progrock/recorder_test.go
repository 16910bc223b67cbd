package progrock_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/telemetry/progrock"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

func TestNew(t *testing.T) {
	recorder := progrock.New()
	assert.NotNil(t, recorder)
}

func TestRecorder_RecordCarriesVertex(t *testing.T) {
	recorder := progrock.New()

	ctx, vertex := recorder.Record(context.Background(), "freetype")
	got, ok := ports.VertexFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, vertex, got)

	vertex.Log(domain.LogLevelWarn, "nothing matched libfreetype.la")
	vertex.Complete(errors.New("configure failed"))

	require.NoError(t, recorder.Close())
}

func TestRecorder_Journal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.jsonl")
	recorder := progrock.New()
	require.NoError(t, recorder.Journal(path))

	ctx := context.Background()
	_, zlib := recorder.Record(ctx, "zlib")
	_, err := zlib.Stdout().Write([]byte("checking for gcc... gcc\nzlib built\n"))
	require.NoError(t, err)
	zlib.Complete(nil)

	_, libpng := recorder.Record(ctx, "libpng")
	_, err = libpng.Stderr().Write([]byte("configure: error: zlib not installed\n"))
	require.NoError(t, err)
	libpng.Complete(errors.New("configure failed"))

	_, freetype := recorder.Record(ctx, "freetype")
	_ = freetype

	require.NoError(t, recorder.Close())

	entries, err := progrock.NewRunLog().LastRun(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "zlib", entries[0].Name)
	assert.True(t, entries[0].Completed)
	assert.False(t, entries[0].Failed())
	assert.Equal(t, "zlib built", entries[0].LastLine)
	assert.False(t, entries[0].Started.IsZero())

	assert.Equal(t, "libpng", entries[1].Name)
	assert.True(t, entries[1].Failed())
	assert.Contains(t, entries[1].Error, "configure failed")
	assert.Equal(t, "configure: error: zlib not installed", entries[1].LastLine)

	assert.Equal(t, "freetype", entries[2].Name)
	assert.False(t, entries[2].Completed)
	assert.Zero(t, entries[2].Duration)
}

func TestRecorder_Journal_ReplacesPrevious(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.jsonl")
	second := filepath.Join(dir, "second.jsonl")

	recorder := progrock.New()
	require.NoError(t, recorder.Journal(first))
	_, v := recorder.Record(context.Background(), "zlib")
	v.Complete(nil)

	require.NoError(t, recorder.Journal(second))
	_, v = recorder.Record(context.Background(), "bzip2")
	v.Complete(nil)
	require.NoError(t, recorder.Close())

	entries, err := progrock.NewRunLog().LastRun(second)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bzip2", entries[0].Name)
}

func TestRecorder_Journal_UnwritablePath(t *testing.T) {
	err := progrock.New().Journal(filepath.Join(t.TempDir(), "missing", "progress.jsonl"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to create progress journal")
}

func TestRunLog_MissingJournal(t *testing.T) {
	entries, err := progrock.NewRunLog().LastRun(filepath.Join(t.TempDir(), "progress.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunLog_TruncatedJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.jsonl")
	recorder := progrock.New()
	require.NoError(t, recorder.Journal(path))
	_, v := recorder.Record(context.Background(), "zlib")
	v.Complete(nil)
	require.NoError(t, recorder.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0) //nolint:gosec // Test file
	require.NoError(t, err)
	_, err = f.WriteString(`{"vertexes":[{"id":"sha`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := progrock.NewRunLog().LastRun(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "zlib", entries[0].Name)
}

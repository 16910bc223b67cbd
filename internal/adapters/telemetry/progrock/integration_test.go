package progrock_test

import (
	"context"
	"testing"

	"go.trai.ch/kiln/internal/adapters/telemetry/progrock"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestRecorder_Integration(t *testing.T) {
	// 1. Initialize the Recorder
	recorder := progrock.New()

	// 2. Start a target
	ctx := context.Background()
	_, vertex := recorder.Record(ctx, "zlib")

	// 3. Write to Stdout
	if _, err := vertex.Stdout().Write([]byte("checking for shared library support... no\n")); err != nil {
		t.Errorf("failed to write to stdout: %v", err)
	}
	if _, err := vertex.Stderr().Write([]byte("warning: deprecated option\n")); err != nil {
		t.Errorf("failed to write to stderr: %v", err)
	}

	// 4. Log a debug message
	vertex.Log(domain.LogLevelDebug, "debug msg")

	// 5. Complete a second target and the first vertex
	_, other := recorder.Record(ctx, "bzip2")
	other.Complete(nil)
	vertex.Complete(nil)

	// 6. Close the recorder
	if err := recorder.Close(); err != nil {
		t.Errorf("failed to close recorder: %v", err)
	}
}

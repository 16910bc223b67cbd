package ports

import (
	"context"
	"io"

	"go.trai.ch/kiln/internal/core/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=telemetry.go -destination=mocks/mock_telemetry.go -package=mocks

// Telemetry records progress per target.
type Telemetry interface {
	// Record starts a vertex and returns a context carrying it.
	Record(ctx context.Context, name string) (context.Context, Vertex)
	// Journal writes every later update to a new journal at path as well.
	Journal(path string) error
	// Close flushes the recording.
	Close() error
}

// RunLog reads back a journal written through Telemetry.Journal.
type RunLog interface {
	// LastRun returns one entry per recorded target in recording order.
	// A missing journal yields no entries.
	LastRun(path string) ([]domain.RunEntry, error)
}

// Vertex is one unit of recorded work.
type Vertex interface {
	// Stdout returns a writer for standard output.
	Stdout() io.Writer
	// Stderr returns a writer for error output.
	Stderr() io.Writer
	// Log records a message against the vertex.
	Log(level domain.LogLevel, msg string)
	// Complete marks the vertex as finished, failed when err is non-nil.
	Complete(err error)
}

type vertexKey struct{}

// ContextWithVertex returns a copy of ctx carrying v.
func ContextWithVertex(ctx context.Context, v Vertex) context.Context {
	return context.WithValue(ctx, vertexKey{}, v)
}

// VertexFromContext returns the vertex carried by ctx, if any.
func VertexFromContext(ctx context.Context) (Vertex, bool) {
	v, ok := ctx.Value(vertexKey{}).(Vertex)
	return v, ok
}

// Package progrock provides the Progrock implementation of the telemetry adapter.
package progrock

import (
	"context"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Telemetry = (*Recorder)(nil)

// Recorder implements the ports.Telemetry interface using the vito/progrock library.
type Recorder struct {
	mu      sync.Mutex
	w       progrock.Writer
	journal progrock.Writer
	rec     *progrock.Recorder
}

// New creates a new Recorder with a default tape.
func New() *Recorder {
	tape := progrock.NewTape()
	return NewRecorder(tape)
}

// NewRecorder creates a new Recorder with the given writer.
func NewRecorder(w progrock.Writer) *Recorder {
	return &Recorder{
		w:   w,
		rec: progrock.NewRecorder(w),
	}
}

// Record starts a vertex for one pipeline step. The vertex digest is derived
// from the name, so recording the same target twice reuses its vertex.
func (r *Recorder) Record(ctx context.Context, name string) (context.Context, ports.Vertex) {
	r.mu.Lock()
	rec := r.rec
	r.mu.Unlock()

	v := rec.Vertex(digest.FromString(name), name)
	vertex := &Vertex{vertex: v}
	return ports.ContextWithVertex(ctx, vertex), vertex
}

// Journal creates a journal at path and sends every later update to it.
// A previous journal is closed.
func (r *Recorder) Journal(path string) error {
	journal, err := progrock.CreateJournal(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create progress journal"), "path", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.journal != nil {
		_ = r.journal.Close()
	}
	r.journal = journal
	r.rec = progrock.NewRecorder(progrock.MultiWriter{r.w, journal})
	return nil
}

// Close flushes and closes the recording session.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.journal != nil {
		errs = append(errs, r.journal.Close())
		r.journal = nil
	}
	errs = append(errs, r.w.Close())
	for _, err := range errs {
		if err != nil {
			return zerr.Wrap(err, "failed to close progress recording")
		}
	}
	return nil
}

package progrock

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"regexp"

	"github.com/vito/progrock"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.RunLog = (*RunLog)(nil)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// RunLog replays a progress journal onto a tape.
type RunLog struct{}

// NewRunLog creates a new RunLog.
func NewRunLog() *RunLog {
	return &RunLog{}
}

// LastRun returns one entry per vertex of the journal at path. A journal cut
// short by an interrupted run is read up to its last complete update.
func (l *RunLog) LastRun(path string) ([]domain.RunEntry, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to open progress journal"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Read only

	tape := progrock.NewTape()
	dec := json.NewDecoder(f)
	for {
		var update progrock.StatusUpdate
		if err := dec.Decode(&update); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, zerr.With(zerr.Wrap(err, "failed to decode progress journal"), "path", path)
		}
		if err := tape.WriteStatus(&update); err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to replay progress journal"), "path", path)
		}
	}

	var entries []domain.RunEntry
	for _, v := range tape.Vertices() {
		entry := domain.RunEntry{
			Name:      v.GetName(),
			Completed: v.GetCompleted() != nil,
			Error:     v.GetError(),
			LastLine:  ansiPattern.ReplaceAllString(tape.Activity(v).LastLine, ""),
		}
		if started := v.GetStarted(); started != nil {
			entry.Started = started.AsTime()
		}
		if entry.Completed {
			entry.Duration = v.Duration()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

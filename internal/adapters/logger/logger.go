// Package logger implements a logging adapter using log/slog.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// tailKey is the metadata key whose value is printed verbatim below the error record.
const tailKey = "output_tail"

// Logger implements ports.Logger using log/slog.
type Logger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	output io.Writer
	mu     sync.RWMutex
}

// New creates a new Logger instance writing to stderr at info level.
func New() *Logger {
	l := &Logger{level: &slog.LevelVar{}}
	l.SetOutput(os.Stderr)
	return l
}

// SetOutput updates the logger's output destination.
// If w is nil, os.Stderr is used.
func (l *Logger) SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: l.level,
	})
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.logger = slog.New(handler)
}

// SetLevel changes the minimum level that is written.
func (l *Logger) SetLevel(level domain.LogLevel) {
	l.level.Set(slog.Level(level))
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Debug(msg)
}

// Info logs an informational message.
func (l *Logger) Info(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Info(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Warn(msg)
}

// Error logs an error together with the metadata attached anywhere in its chain.
// A command output tail is printed below the record.
func (l *Logger) Error(err error) {
	if err == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	meta := make(map[string]any)
	collectMetadata(err, meta)
	tail, _ := meta[tailKey].(string)
	delete(meta, tailKey)

	args := []any{"error", err.Error()}
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		args = append(args, k, meta[k])
	}
	l.logger.Error("operation failed", args...)

	if tail != "" && l.level.Level() <= slog.LevelError {
		for line := range strings.SplitSeq(strings.TrimRight(tail, "\n"), "\n") {
			_, _ = fmt.Fprintf(l.output, "    | %s\n", line)
		}
	}
}

// collectMetadata walks the error tree, outermost first. Outer values win.
func collectMetadata(err error, into map[string]any) {
	if err == nil {
		return
	}
	if zErr, ok := err.(*zerr.Error); ok {
		for k, v := range zErr.Metadata() {
			if _, seen := into[k]; !seen {
				into[k] = v
			}
		}
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			collectMetadata(e, into)
		}
	case interface{ Unwrap() error }:
		collectMetadata(u.Unwrap(), into)
	}
}

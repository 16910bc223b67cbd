// Package shell provides the shell executor adapter.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sys/unix"
)

// DefaultTailLines is the number of trailing output lines attached to a failure.
const DefaultTailLines = 20

// Executor implements ports.Executor using os/exec.
type Executor struct {
	logger    ports.Logger
	tailLines int
}

// NewExecutor creates a new Executor.
func NewExecutor(logger ports.Logger) *Executor {
	return &Executor{
		logger:    logger,
		tailLines: DefaultTailLines,
	}
}

// Execute runs the command with its scoped environment.
// It merges environments with the following priority (low to high):
// 1. os.Environ() (System base)
// 2. cmd.Env (pipeline and target overrides)
//
// cmd.PathPrefix is prepended to the resulting PATH. Output is streamed to
// the vertex carried by ctx, if any, and to the logger at debug level.
func (e *Executor) Execute(ctx context.Context, c *domain.Command) error {
	if len(c.Args) == 0 {
		return nil
	}

	name := c.Args[0]
	args := c.Args[1:]

	cmdEnv := resolveEnvironment(os.Environ(), c.PathPrefix, c.Env)

	executable := name
	switch {
	case strings.ContainsRune(name, filepath.Separator):
		if err := checkExecutable(name, c.Dir); err != nil {
			return zerr.With(zerr.Wrap(err, "command not executable"), "command", name)
		}
	default:
		if lp, err := lookPath(name, cmdEnv); err == nil {
			executable = lp
		}
	}

	cmd := exec.CommandContext(ctx, executable, args...) //nolint:gosec // pipeline provided command

	// exec.CommandContext sets Args[0] to the executable path.
	if len(cmd.Args) > 0 {
		cmd.Args[0] = name
	}
	cmd.Dir = c.Dir
	cmd.Env = cmdEnv

	e.logger.Debug(fmt.Sprintf("%s: %s $ %s", c.Target, c.Dir, strings.Join(c.Args, " ")))
	for _, k := range slices.Sorted(maps.Keys(c.Env)) {
		e.logger.Debug(fmt.Sprintf("%s: env %s=%s", c.Target, k, c.Env[k]))
	}

	tail := newTailBuffer(e.tailLines)
	stdoutLog := &logWriter{logger: e.logger, tail: tail}
	stderrLog := &logWriter{logger: e.logger, tail: tail}

	var stdout, stderr io.Writer = stdoutLog, stderrLog
	if vertex, ok := ports.VertexFromContext(ctx); ok {
		stdout = io.MultiWriter(vertex.Stdout(), stdoutLog)
		stderr = io.MultiWriter(vertex.Stderr(), stderrLog)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	_ = stdoutLog.Close()
	_ = stderrLog.Close()

	if err != nil {
		exitCode := -1 // Unknown or signal
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}

		err = zerr.With(zerr.Wrap(err, "command failed"), "exit_code", exitCode)
		err = zerr.With(err, "command", strings.Join(c.Args, " "))
		return zerr.With(err, "output_tail", tail.String())
	}

	return nil
}

// logWriter buffers partial writes and emits complete lines.
type logWriter struct {
	logger ports.Logger
	tail   *tailBuffer
	buf    []byte
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.buf = append(w.buf, p...)

	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}

		w.logLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}

	return len(p), nil
}

// Close flushes a trailing line without newline.
func (w *logWriter) Close() error {
	if len(w.buf) > 0 {
		w.logLine(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *logWriter) logLine(line []byte) {
	msg := strings.TrimSuffix(string(line), "\r")
	w.tail.add(msg)
	w.logger.Debug(msg)
}

// tailBuffer keeps the last n lines written by either stream.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	n     int
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

// resolveEnvironment merges environment variables with the defined priority
// and returns them sorted by key.
func resolveEnvironment(sysEnv, pathPrefix []string, overrides map[string]string) []string {
	envMap := make(map[string]string)
	for _, entry := range sysEnv {
		k, v, ok := strings.Cut(entry, "=")
		if ok {
			envMap[k] = v
		}
	}

	for k, v := range overrides {
		envMap[k] = v
	}

	if len(pathPrefix) > 0 {
		parts := slices.Clone(pathPrefix)
		if sysPath := envMap["PATH"]; sysPath != "" {
			parts = append(parts, sysPath)
		}
		envMap["PATH"] = strings.Join(parts, string(os.PathListSeparator))
	}

	result := make([]string, 0, len(envMap))
	for _, k := range slices.Sorted(maps.Keys(envMap)) {
		result = append(result, k+"="+envMap[k])
	}
	return result
}

// lookPath searches for an executable in the directories named by the PATH environment variable.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = strings.TrimPrefix(e, "PATH=")
			break
		}
	}

	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := checkExecutable(path, ""); err == nil {
			return path, nil
		}
	}
	return "", exec.ErrNotFound
}

// checkExecutable reports whether file, relative to dir, is an executable regular file.
func checkExecutable(file, dir string) error {
	if !filepath.IsAbs(file) && dir != "" {
		file = filepath.Join(dir, file)
	}
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if d.IsDir() {
		return os.ErrPermission
	}
	return unix.Access(file, unix.X_OK)
}

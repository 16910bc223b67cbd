package domain

import "time"

// TargetStatus describes a target's state relative to its last recorded build.
type TargetStatus string

const (
	// TargetStatusPending indicates the target has no build record.
	TargetStatusPending TargetStatus = "pending"
	// TargetStatusBuilt indicates the recorded build matches the current definition.
	TargetStatusBuilt TargetStatus = "built"
	// TargetStatusStale indicates the definition changed since the recorded build.
	TargetStatusStale TargetStatus = "stale"
	// TargetStatusBroken indicates recorded files are missing from the staging prefix.
	TargetStatusBroken TargetStatus = "broken"
)

// LogLevel represents the severity of a log message, mirroring the standard slog levels.
type LogLevel int

const (
	// LogLevelDebug represents debug-level verbosity.
	LogLevelDebug LogLevel = -4
	// LogLevelInfo represents informational verbosity.
	LogLevelInfo LogLevel = 0
	// LogLevelWarn represents warning verbosity.
	LogLevelWarn LogLevel = 4
	// LogLevelError represents error verbosity.
	LogLevelError LogLevel = 8
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// RunEntry is a target's outcome as recorded in the last run's journal.
type RunEntry struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	// Completed is false when the run stopped while the target was building.
	Completed bool
	Error     string
	// LastLine is the last line of output the target produced.
	LastLine string
}

// Failed reports whether the target finished with an error.
func (e RunEntry) Failed() bool {
	return e.Error != ""
}

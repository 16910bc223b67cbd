package domain

// Command is a single child process invocation.
// Env holds overrides applied on top of the process environment; it is never
// set on the current process. PathPrefix is prepended to PATH.
type Command struct {
	Target     string
	Step       string
	Args       []string
	Dir        string
	Env        map[string]string
	PathPrefix []string
}

package server

import (
	"context"
	"io"
	"time"
)

// LaunchSpec describes one launch of the game server binary.
type LaunchSpec struct {
	Binary string
	Args   []string
	Dir    string
}

// ProcessUsage is a point-in-time resource reading for a process.
type ProcessUsage struct {
	CPUTime     time.Duration // cumulative user + system time
	MemoryBytes uint64
}

// ProcessLauncher starts game server processes.
type ProcessLauncher interface {
	// Launch starts the process described by spec
	Launch(spec LaunchSpec) (Process, error)
}

// Process is a running (or exited) child process.
type Process interface {
	// Pid returns the OS process id
	Pid() int

	// Output returns the merged stdout/stderr stream. Reads return EOF once
	// the process has exited; Close unblocks a pending read.
	Output() io.ReadCloser

	// Kill forcefully terminates the process
	Kill() error

	// Done is closed once the process has exited
	Done() <-chan struct{}

	// ExitCode returns the exit status, valid after Done is closed
	ExitCode() int

	// StartTime returns when the process was started
	StartTime() time.Time

	// Usage reads cumulative CPU time and memory use
	Usage() (ProcessUsage, error)
}

// ControlLink is an authenticated remote administration session running
// inside the game server.
type ControlLink interface {
	// Open connects to the remote administration port
	Open(ctx context.Context, addr string) error

	// IsOpen reports whether the connection is usable
	IsOpen() bool

	// Login authenticates with the admin password
	Login(ctx context.Context, password string) error

	// EnableEvents turns on push notifications for this connection
	EnableEvents(ctx context.Context) error

	// SendMessage sends one request and returns the response words
	SendMessage(ctx context.Context, words ...string) ([]string, error)

	// Close drops the connection
	Close() error
}

// ActivityRecorder receives lifecycle events worth keeping in the audit trail.
type ActivityRecorder interface {
	RecordEvent(eventType, message string, details map[string]interface{})
}

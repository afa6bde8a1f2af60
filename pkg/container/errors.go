package container

import (
	"errors"
	"fmt"
)

var (
	// ErrLaunchFailed matches a LaunchError whose launcher reported failure.
	ErrLaunchFailed = errors.New("launch failed")

	// ErrMalformedResponse matches a LaunchError whose launcher reported
	// success but returned no container id.
	ErrMalformedResponse = errors.New("launcher returned an empty container id")
)

// LaunchErrorKind classifies a LaunchError.
type LaunchErrorKind int

const (
	// LaunchFailed means the launcher exited non-zero or the engine refused the request
	LaunchFailed LaunchErrorKind = iota
	// MalformedResponse means the launcher succeeded but produced no usable id
	MalformedResponse
)

func (k LaunchErrorKind) String() string {
	switch k {
	case LaunchFailed:
		return "launch failed"
	case MalformedResponse:
		return "malformed response"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// LaunchError is returned by Start when no container could be started.
// A LaunchError never comes with a Handle, so there is nothing to stop.
type LaunchError struct {
	Kind  LaunchErrorKind
	Image string

	// ExitCode is the launcher's exit status, or -1 when not applicable
	ExitCode int

	// Diagnostic is the launcher's diagnostic output (stderr for the CLI)
	Diagnostic string

	// Err is the underlying error, if any
	Err error
}

func (e *LaunchError) Error() string {
	switch e.Kind {
	case MalformedResponse:
		return fmt.Sprintf("failed to start docker container %s: %s", e.Image, ErrMalformedResponse)
	default:
		msg := e.Diagnostic
		if msg == "" && e.Err != nil {
			msg = e.Err.Error()
		}
		return fmt.Sprintf("failed to start docker container %s: %s", e.Image, msg)
	}
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *LaunchError) Is(target error) bool {
	switch target {
	case ErrLaunchFailed:
		return e.Kind == LaunchFailed
	case ErrMalformedResponse:
		return e.Kind == MalformedResponse
	}
	return false
}

// CommandError reports a launcher command that exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Command, e.ExitCode, e.Stderr)
}

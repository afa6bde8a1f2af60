package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
)

// CommandRunner runs an external command and returns its captured output.
// A non-zero exit must be reported as a *CommandError.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and captures stdout and stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), stderr.Bytes(), &CommandError{
				Command:  name + " " + firstArg(args),
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("failed to run %s: %w", name, err)
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// CLILauncher starts containers with `docker run -d` and stops them with
// `docker stop`.
type CLILauncher struct {
	binary string
	runner CommandRunner

	mu   sync.Mutex
	keep map[string]bool // ids started without --rm, removed after stop
}

// CLIOption configures a CLILauncher.
type CLIOption func(*CLILauncher)

// WithBinary sets the docker-compatible binary (e.g. "podman").
func WithBinary(path string) CLIOption {
	return func(l *CLILauncher) { l.binary = path }
}

// WithRunner replaces the command runner.
func WithRunner(r CommandRunner) CLIOption {
	return func(l *CLILauncher) { l.runner = r }
}

// NewCLILauncher creates a launcher that shells out to docker.
func NewCLILauncher(opts ...CLIOption) *CLILauncher {
	l := &CLILauncher{
		binary: "docker",
		runner: ExecRunner{},
		keep:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunArgs builds the `docker run` argument list for spec.
func RunArgs(spec Spec) []string {
	args := []string{"run", "-d"}
	if spec.AutoRemove {
		args = append(args, "--rm")
	}
	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+spec.Env[k])
	}

	for _, p := range spec.Ports {
		args = append(args, "-p", p.String())
	}

	args = append(args, spec.Image)
	return append(args, spec.Args...)
}

// Launch runs the container detached and returns docker's stdout.
func (l *CLILauncher) Launch(ctx context.Context, spec Spec) (string, error) {
	stdout, _, err := l.runner.Run(ctx, l.binary, RunArgs(spec)...)
	if err != nil {
		return "", err
	}

	id := strings.TrimSpace(string(stdout))
	if id != "" && !spec.AutoRemove {
		l.mu.Lock()
		l.keep[id] = true
		l.mu.Unlock()
	}
	return string(stdout), nil
}

// Teardown stops the container, and removes it when it was started without
// --rm. A --rm container that already exited is gone, so docker reports
// "No such container" for it.
//
// A container started without --rm is force-removed even when the stop fails.
func (l *CLILauncher) Teardown(ctx context.Context, id string) error {
	l.mu.Lock()
	remove := l.keep[id]
	delete(l.keep, id)
	l.mu.Unlock()

	_, _, stopErr := l.runner.Run(ctx, l.binary, "stop", id)
	if !remove {
		return stopErr
	}
	if stopErr == nil {
		_, _, err := l.runner.Run(ctx, l.binary, "rm", id)
		return err
	}

	_, _, rmErr := l.runner.Run(ctx, l.binary, "rm", "-f", id)
	return errors.Join(stopErr, rmErr)
}

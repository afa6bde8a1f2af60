package container

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

// scriptedRunner answers commands by their docker subcommand.
type scriptedRunner struct {
	calls   []call
	answers map[string]struct {
		stdout string
		err    error
	}
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, call{name: name, args: args})
	a := r.answers[args[0]]
	return []byte(a.stdout), nil, a.err
}

func newScripted() *scriptedRunner {
	return &scriptedRunner{answers: map[string]struct {
		stdout string
		err    error
	}{}}
}

func (r *scriptedRunner) answer(sub, stdout string, err error) {
	r.answers[sub] = struct {
		stdout string
		err    error
	}{stdout, err}
}

func TestRunArgs(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want []string
	}{
		{
			name: "playwright run-server",
			spec: Spec{
				Image:      "mcr.microsoft.com/playwright:v1.56.1-jammy",
				Ports:      []PortBinding{{Host: 3000, Container: 3000}},
				Args:       []string{"npx", "-y", "playwright@1.56.1", "run-server", "--port", "3000", "--path", "/playwright"},
				AutoRemove: true,
			},
			want: []string{
				"run", "-d", "--rm", "-p", "3000:3000",
				"mcr.microsoft.com/playwright:v1.56.1-jammy",
				"npx", "-y", "playwright@1.56.1", "run-server", "--port", "3000", "--path", "/playwright",
			},
		},
		{
			name: "selenium remapped port",
			spec: Spec{
				Image:      "seleniarm/standalone-chromium:latest",
				Ports:      []PortBinding{{Host: 4445, Container: 4444}},
				AutoRemove: true,
			},
			want: []string{"run", "-d", "--rm", "-p", "4445:4444", "seleniarm/standalone-chromium:latest"},
		},
		{
			name: "name and sorted env",
			spec: Spec{
				Image: "ghcr.io/browserless/chromium",
				Name:  "bb-cdp",
				Env:   map[string]string{"TOKEN": "x", "CONCURRENT": "2"},
			},
			want: []string{"run", "-d", "--name", "bb-cdp", "-e", "CONCURRENT=2", "-e", "TOKEN=x", "ghcr.io/browserless/chromium"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RunArgs(tt.spec))
		})
	}
}

func TestCLILauncher_LaunchAndTeardown(t *testing.T) {
	r := newScripted()
	r.answer("run", "c0ffee\n", nil)
	l := NewCLILauncher(WithRunner(r))

	h, err := Start(context.Background(), l, testSpec)
	require.NoError(t, err)
	assert.Equal(t, "c0ffee", h.ID())

	h.Stop()

	require.Len(t, r.calls, 2)
	assert.Equal(t, "docker", r.calls[0].name)
	assert.Equal(t, []string{"stop", "c0ffee"}, r.calls[1].args)
}

func TestCLILauncher_RemovesWhenNotAutoRemoved(t *testing.T) {
	r := newScripted()
	r.answer("run", "c0ffee", nil)
	l := NewCLILauncher(WithRunner(r), WithBinary("podman"))

	spec := testSpec
	spec.AutoRemove = false
	raw, err := l.Launch(context.Background(), spec)
	require.NoError(t, err)
	require.NoError(t, l.Teardown(context.Background(), strings.TrimSpace(raw)))

	require.Len(t, r.calls, 3)
	for _, c := range r.calls {
		assert.Equal(t, "podman", c.name)
	}
	assert.Equal(t, []string{"rm", "c0ffee"}, r.calls[2].args)

	// A second teardown only stops; the id was already removed from tracking.
	require.NoError(t, l.Teardown(context.Background(), "c0ffee"))
	assert.Len(t, r.calls, 4)
}

func TestCLILauncher_StopFailureStillRemovesKeptContainer(t *testing.T) {
	r := newScripted()
	r.answer("run", "c0ffee", nil)
	r.answer("stop", "", &CommandError{Command: "docker stop", ExitCode: 1, Stderr: "daemon busy"})
	l := NewCLILauncher(WithRunner(r))

	spec := testSpec
	spec.AutoRemove = false
	_, err := l.Launch(context.Background(), spec)
	require.NoError(t, err)

	err = l.Teardown(context.Background(), "c0ffee")
	assert.ErrorContains(t, err, "daemon busy")

	require.Len(t, r.calls, 3)
	assert.Equal(t, []string{"rm", "-f", "c0ffee"}, r.calls[2].args)
	assert.Empty(t, l.keep)
}

func TestCLILauncher_StopFailureAutoRemoved(t *testing.T) {
	r := newScripted()
	r.answer("run", "c0ffee", nil)
	r.answer("stop", "", &CommandError{Command: "docker stop", ExitCode: 1, Stderr: "No such container: c0ffee"})
	l := NewCLILauncher(WithRunner(r))

	_, err := l.Launch(context.Background(), testSpec)
	require.NoError(t, err)

	err = l.Teardown(context.Background(), "c0ffee")
	assert.ErrorContains(t, err, "No such container")
	assert.Len(t, r.calls, 2)
}

func TestCLILauncher_FailurePropagatesStderr(t *testing.T) {
	r := newScripted()
	r.answer("run", "", &CommandError{Command: "docker run", ExitCode: 125, Stderr: "port already in use"})
	l := NewCLILauncher(WithRunner(r))

	_, err := Start(context.Background(), l, testSpec)

	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "port already in use", le.Diagnostic)
	assert.Equal(t, 125, le.ExitCode)
	assert.Len(t, r.calls, 1)
}

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	stdout, _, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo abc")
	require.NoError(t, err)
	assert.Equal(t, "abc\n", string(stdout))

	_, _, err = ExecRunner{}.Run(context.Background(), "sh", "-c", "echo 'port already in use' >&2; exit 3")
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, "port already in use", cmdErr.Stderr)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, _, err := ExecRunner{}.Run(context.Background(), "browserbox-no-such-binary")
	require.Error(t, err)

	var cmdErr *CommandError
	assert.False(t, errors.As(err, &cmdErr))
}

func TestParsePortBinding(t *testing.T) {
	tests := []struct {
		in      string
		want    PortBinding
		wantErr bool
	}{
		{in: "3000:3000", want: PortBinding{Host: 3000, Container: 3000}},
		{in: "4445:4444", want: PortBinding{Host: 4445, Container: 4444}},
		{in: "9222", want: PortBinding{Host: 9222, Container: 9222}},
		{in: "abc:1", wantErr: true},
		{in: "1:abc", wantErr: true},
		{in: "0:3000", wantErr: true},
		{in: "3000:70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePortBinding(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, fmt.Sprintf("%d:%d", tt.want.Host, tt.want.Container), got.String())
		})
	}
}

func TestSpecValidate(t *testing.T) {
	assert.NoError(t, testSpec.Validate())
	assert.Error(t, Spec{Image: " "}.Validate())
	assert.Error(t, Spec{Image: "x", Ports: []PortBinding{{Host: 0, Container: 1}}}.Validate())
}

package container

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/browserbox/pkg/logging"
)

// DefaultStopTimeout bounds a single teardown call.
const DefaultStopTimeout = 30 * time.Second

// Launcher starts and stops containers. It is the external process
// collaborator: Launch returns the launcher's raw output, which Start trims
// and treats as an opaque container id.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (string, error)
	Teardown(ctx context.Context, id string) error
}

// Handle owns one started container. It is not safe to share across runs;
// each run acquires its own.
type Handle struct {
	id          string
	image       string
	launcher    Launcher
	logger      *logging.Logger
	stopTimeout time.Duration

	stopOnce sync.Once
	mu       sync.Mutex
	stopped  bool
}

// Option configures Start and Run.
type Option func(*options)

type options struct {
	logger      *logging.Logger
	stopTimeout time.Duration
}

// WithLogger sets the logger used for start/stop diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStopTimeout bounds the teardown call.
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) { o.stopTimeout = d }
}

func buildOptions(opts []Option) options {
	o := options{stopTimeout: DefaultStopTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.stopTimeout <= 0 {
		o.stopTimeout = DefaultStopTimeout
	}
	return o
}

// Start launches the container described by spec and returns a handle for it.
//
// Any launcher failure is returned as a *LaunchError and is never retried.
// A successful launch with empty output is a MalformedResponse LaunchError.
func Start(ctx context.Context, launcher Launcher, spec Spec, opts ...Option) (*Handle, error) {
	o := buildOptions(opts)

	if err := spec.Validate(); err != nil {
		return nil, &LaunchError{Kind: LaunchFailed, Image: spec.Image, ExitCode: -1, Err: fmt.Errorf("invalid container spec: %w", err)}
	}

	raw, err := launcher.Launch(ctx, spec)
	if err != nil {
		return nil, toLaunchError(spec.Image, err)
	}

	id := strings.TrimSpace(raw)
	if id == "" {
		return nil, &LaunchError{Kind: MalformedResponse, Image: spec.Image, ExitCode: 0}
	}

	o.logger.Infof("Started docker container: %s", id)
	return &Handle{
		id:          id,
		image:       spec.Image,
		launcher:    launcher,
		logger:      o.logger,
		stopTimeout: o.stopTimeout,
	}, nil
}

func toLaunchError(image string, err error) *LaunchError {
	var le *LaunchError
	if errors.As(err, &le) {
		return le
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return &LaunchError{
			Kind:       LaunchFailed,
			Image:      image,
			ExitCode:   cmdErr.ExitCode,
			Diagnostic: cmdErr.Stderr,
			Err:        err,
		}
	}

	return &LaunchError{Kind: LaunchFailed, Image: image, ExitCode: -1, Diagnostic: err.Error(), Err: err}
}

// ID returns the container id reported by the launcher.
func (h *Handle) ID() string {
	return h.id
}

// Image returns the image the container was started from.
func (h *Handle) Image() string {
	return h.image
}

// Stopped reports whether Stop has run.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Stop tears the container down. Only the first call issues a teardown;
// later calls return immediately. Teardown errors are logged, not returned.
//
// Stop uses its own context so that a cancelled run still stops its container.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.logger.Infof("Stopping docker container: %s", h.id)

		ctx, cancel := context.WithTimeout(context.Background(), h.stopTimeout)
		defer cancel()

		if err := h.launcher.Teardown(ctx, h.id); err != nil {
			h.logger.Warnf("Failed to stop docker container %s: %v", h.id, err)
		}

		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()
	})
}

// Run starts the container, calls fn with its handle, and stops the container
// when fn returns or panics. If the launch fails, fn is not called and the
// LaunchError is returned.
func Run(ctx context.Context, launcher Launcher, spec Spec, fn func(ctx context.Context, h *Handle) error, opts ...Option) error {
	h, err := Start(ctx, launcher, spec, opts...)
	if err != nil {
		return err
	}
	defer h.Stop()

	return fn(ctx, h)
}

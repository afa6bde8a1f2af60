// Package runner executes browserbox scenarios: it starts the scenario's
// container, waits for the browser endpoint to accept a connection, drives the
// page, and tears everything down again.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/browserbox/pkg/browser"
	"github.com/entrhq/browserbox/pkg/config"
	"github.com/entrhq/browserbox/pkg/container"
	"github.com/entrhq/browserbox/pkg/logging"
	"github.com/entrhq/browserbox/pkg/readiness"
)

// Report summarises one scenario execution.
type Report struct {
	Scenario    string
	ContainerID string

	// Attempts is the number of connection attempts made
	Attempts int

	Title          string
	Version        string
	ScreenshotPath string
	TracePath      string
	Duration       time.Duration
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %q", r.Scenario, r.Title)
	if r.Version != "" {
		fmt.Fprintf(&b, " (browser %s)", r.Version)
	}
	fmt.Fprintf(&b, " in %s after %d attempt(s)", r.Duration.Round(time.Millisecond), r.Attempts)
	return b.String()
}

// Runner executes scenarios with one launcher and one dialer.
type Runner struct {
	launcher    container.Launcher
	dialer      browser.Dialer
	log         *logging.Logger
	retry       config.RetryConfig
	stopTimeout time.Duration
	sleep       readiness.Sleeper
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Each scenario logs under its own name.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithDefaultRetry sets the policy for scenarios that do not carry their own.
func WithDefaultRetry(rc config.RetryConfig) Option {
	return func(r *Runner) { r.retry = rc }
}

// WithStopTimeout bounds container teardown.
func WithStopTimeout(d time.Duration) Option {
	return func(r *Runner) { r.stopTimeout = d }
}

// WithSleeper replaces the wait between connection attempts.
func WithSleeper(fn readiness.Sleeper) Option {
	return func(r *Runner) { r.sleep = fn }
}

// New creates a Runner.
func New(launcher container.Launcher, dialer browser.Dialer, opts ...Option) *Runner {
	r := &Runner{
		launcher:    launcher,
		dialer:      dialer,
		log:         logging.Discard(),
		retry:       config.DefaultConfig().Defaults.Retry,
		stopTimeout: container.DefaultStopTimeout,
		sleep:       readiness.TimerSleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs one scenario. The container is stopped before Execute returns
// whenever it was started, including on failure or cancellation.
//
// The returned report is never nil and holds whatever was collected before a
// failure.
func (r *Runner) Execute(ctx context.Context, s config.Scenario) (*Report, error) {
	report := &Report{Scenario: s.Name}

	spec, err := s.ContainerSpec()
	if err != nil {
		return report, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	target, err := s.Target()
	if err != nil {
		return report, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	policy, err := s.Policy(r.retry)
	if err != nil {
		return report, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	log := r.log.Named(s.Name)
	log.Verbosef("Image %s, endpoint %s, %s", spec.Image, target, policy)

	start := time.Now()
	err = container.Run(ctx, r.launcher, spec, func(ctx context.Context, h *container.Handle) error {
		report.ContainerID = h.ID()
		return r.drive(ctx, log, s, target, policy, report)
	}, container.WithLogger(log), container.WithStopTimeout(r.stopTimeout))
	report.Duration = time.Since(start)

	if err != nil {
		return report, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	log.Successf("Loaded %q in %s", report.Title, report.Duration.Round(time.Millisecond))
	return report, nil
}

// drive connects to the browser and performs the page actions. The session
// is always closed; a close failure only surfaces when nothing else failed.
func (r *Runner) drive(ctx context.Context, log *logging.Logger, s config.Scenario, target browser.Target, policy readiness.Policy, report *Report) error {
	attempt := browser.Attempt(r.dialer, target)
	counted := func(ctx context.Context) (browser.Session, error) {
		report.Attempts++
		return attempt(ctx)
	}

	session, err := readiness.Connect(ctx, target.Endpoint, counted, policy,
		readiness.WithLogger(log),
		readiness.WithSleeper(r.sleep),
	)
	if err != nil {
		return err
	}
	report.Version = session.Version()
	log.Infof("Connected to %s", target)

	runErr := r.automate(log, session, s, report)

	closeErr := session.Close()
	if closeErr == nil {
		report.TracePath = session.TracePath()
	}

	switch {
	case runErr != nil:
		if closeErr != nil {
			log.Warnf("Failed to close browser session: %v", closeErr)
		}
		return runErr
	case closeErr != nil:
		return fmt.Errorf("failed to close browser session: %w", closeErr)
	}

	if report.TracePath != "" {
		log.Infof("Trace saved to %s", report.TracePath)
	}
	return nil
}

func (r *Runner) automate(log *logging.Logger, session browser.Session, s config.Scenario, report *Report) error {
	log.Verbosef("Navigating to %s", s.URL)
	if err := session.Navigate(s.URL); err != nil {
		return err
	}

	title, err := session.Title()
	if err != nil {
		return err
	}
	report.Title = title
	log.Infof("Page title: %s", title)

	if s.ScreenshotPath != "" {
		if err := session.Screenshot(s.ScreenshotPath); err != nil {
			return err
		}
		report.ScreenshotPath = s.ScreenshotPath
		log.Infof("Screenshot saved to %s", s.ScreenshotPath)
	}
	return nil
}

// ExecuteAll runs scenarios one after another. A failed scenario does not stop
// the rest; cancellation does. The returned error joins every failure.
func (r *Runner) ExecuteAll(ctx context.Context, scenarios []config.Scenario) ([]*Report, error) {
	var reports []*Report
	var errs []error

	for _, s := range scenarios {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		report, err := r.Execute(ctx, s)
		reports = append(reports, report)
		if err != nil {
			r.log.Errorf("%v", err)
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

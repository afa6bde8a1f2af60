// Package readiness polls an endpoint that may not be accepting connections
// yet, with a fixed delay between attempts and a hard attempt ceiling.
//
// Usage:
//
//	policy := readiness.MustPolicy(15, time.Second)
//	browser, err := readiness.Connect(ctx, "ws://localhost:3000/playwright",
//	    func(ctx context.Context) (playwright.Browser, error) {
//	        return pw.Chromium.Connect("ws://localhost:3000/playwright")
//	    }, policy)
//
// The delay is constant: there is no exponential backoff and no jitter.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/browserbox/pkg/logging"
)

// ErrInvalidPolicy is returned by NewPolicy for unusable settings.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// Policy controls the polling loop. The zero value is not usable; build one
// with NewPolicy, MustPolicy or DefaultPolicy.
type Policy struct {
	maxAttempts int
	delay       time.Duration
}

// NewPolicy builds a Policy. maxAttempts must be at least 1 and delay must
// not be negative.
func NewPolicy(maxAttempts int, delay time.Duration) (Policy, error) {
	if maxAttempts < 1 {
		return Policy{}, fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidPolicy, maxAttempts)
	}
	if delay < 0 {
		return Policy{}, fmt.Errorf("%w: delay must not be negative, got %s", ErrInvalidPolicy, delay)
	}
	return Policy{maxAttempts: maxAttempts, delay: delay}, nil
}

// MustPolicy is like NewPolicy but panics on invalid settings.
func MustPolicy(maxAttempts int, delay time.Duration) Policy {
	p, err := NewPolicy(maxAttempts, delay)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultPolicy waits up to roughly fifteen seconds: 15 attempts one second apart.
func DefaultPolicy() Policy {
	return Policy{maxAttempts: 15, delay: time.Second}
}

// MaxAttempts returns the attempt ceiling.
func (p Policy) MaxAttempts() int { return p.maxAttempts }

// Delay returns the wait between a failed attempt and the next one.
func (p Policy) Delay() time.Duration { return p.delay }

func (p Policy) String() string {
	return fmt.Sprintf("%d attempts, %s apart", p.maxAttempts, p.delay)
}

// AttemptFunc makes one connection attempt. A nil error is success and the
// returned value is handed to the caller; on error the value is discarded, so
// an attempt must release anything it opened before failing.
type AttemptFunc[T any] func(ctx context.Context) (T, error)

// Attempt describes one failed attempt, as reported to observers.
type Attempt struct {
	Target  string
	Number  int
	Max     int
	Err     error
	Elapsed time.Duration
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Target    string
	Attempts  int
	LastCause error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s not ready after %d attempts: %v", e.Target, e.Attempts, e.LastCause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastCause
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// TimerSleep is the default Sleeper.
func TimerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Option configures Connect.
type Option func(*settings)

type settings struct {
	observer func(Attempt)
	logger   *logging.Logger
	sleep    Sleeper
}

// WithObserver registers a callback invoked after every failed attempt.
func WithObserver(fn func(Attempt)) Option {
	return func(s *settings) { s.observer = fn }
}

// WithLogger sets the logger used for per-attempt status lines.
func WithLogger(l *logging.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithSleeper replaces the inter-attempt wait.
func WithSleeper(fn Sleeper) Option {
	return func(s *settings) { s.sleep = fn }
}

// Connect calls attempt until it succeeds or policy.MaxAttempts attempts have
// failed, waiting policy.Delay between a failure and the next attempt. There is
// no wait after the last failed attempt.
//
// The first success is returned immediately. When every attempt fails the
// error is an *ExhaustedError carrying the last cause. If ctx is done before
// an attempt or during a wait, Connect stops and returns ctx.Err() joined with
// the last cause.
func Connect[T any](ctx context.Context, target string, attempt AttemptFunc[T], policy Policy, opts ...Option) (T, error) {
	var zero T

	if policy.maxAttempts < 1 {
		return zero, fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidPolicy, policy.maxAttempts)
	}

	s := settings{sleep: TimerSleep}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}

	start := time.Now()
	var lastErr error

	for n := 1; n <= policy.maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return zero, errors.Join(err, lastErr)
		}

		s.logger.Debugf("Connecting to %s (attempt %d/%d)", target, n, policy.maxAttempts)

		conn, err := attempt(ctx)
		if err == nil {
			s.logger.Debugf("%s ready after %d attempt(s)", target, n)
			return conn, nil
		}
		lastErr = err

		s.logger.Infof("Waiting for %s to become ready... attempt %d/%d (%v)", target, n, policy.maxAttempts, err)
		if s.observer != nil {
			s.observer(Attempt{
				Target:  target,
				Number:  n,
				Max:     policy.maxAttempts,
				Err:     err,
				Elapsed: time.Since(start),
			})
		}

		if n < policy.maxAttempts {
			if err := s.sleep(ctx, policy.delay); err != nil {
				return zero, errors.Join(err, lastErr)
			}
		}
	}

	return zero, &ExhaustedError{Target: target, Attempts: policy.maxAttempts, LastCause: lastErr}
}

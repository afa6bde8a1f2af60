package readiness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserbox/pkg/logging"
)

type conn struct{ id int }

// succeedOn returns an attempt function that fails until call k.
func succeedOn(k int, calls *int) AttemptFunc[*conn] {
	return func(ctx context.Context) (*conn, error) {
		*calls++
		if *calls < k {
			return nil, fmt.Errorf("connection refused (call %d)", *calls)
		}
		return &conn{id: *calls}, nil
	}
}

// recordingSleeper records requested waits without sleeping.
type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func (r *recordingSleeper) total() time.Duration {
	var sum time.Duration
	for _, w := range r.waits {
		sum += w
	}
	return sum
}

func TestNewPolicy(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		delay       time.Duration
		wantErr     bool
	}{
		{name: "single attempt", maxAttempts: 1, delay: 0},
		{name: "defaults of the examples", maxAttempts: 15, delay: time.Second},
		{name: "zero attempts", maxAttempts: 0, delay: time.Second, wantErr: true},
		{name: "negative attempts", maxAttempts: -3, delay: time.Second, wantErr: true},
		{name: "negative delay", maxAttempts: 3, delay: -time.Millisecond, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPolicy(tt.maxAttempts, tt.delay)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPolicy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.maxAttempts, p.MaxAttempts())
			assert.Equal(t, tt.delay, p.Delay())
		})
	}
}

func TestMustPolicyPanics(t *testing.T) {
	assert.Panics(t, func() { MustPolicy(0, time.Second) })
	assert.NotPanics(t, func() { MustPolicy(1, 0) })
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 15, p.MaxAttempts())
	assert.Equal(t, time.Second, p.Delay())
	assert.Equal(t, "15 attempts, 1s apart", p.String())
}

func TestConnect_SucceedsOnKthAttempt(t *testing.T) {
	policy := MustPolicy(5, 100*time.Millisecond)

	for k := 1; k <= policy.MaxAttempts(); k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			calls := 0
			sleeper := &recordingSleeper{}

			c, err := Connect(context.Background(), "ws://localhost:3000/playwright", succeedOn(k, &calls), policy,
				WithSleeper(sleeper.sleep))

			require.NoError(t, err)
			assert.Equal(t, k, c.id)
			assert.Equal(t, k, calls)
			assert.Len(t, sleeper.waits, k-1)
			assert.Equal(t, time.Duration(k-1)*policy.Delay(), sleeper.total())
		})
	}
}

func TestConnect_FifteenAttemptsFourFailures(t *testing.T) {
	policy := MustPolicy(15, 1000*time.Millisecond)
	calls := 0
	sleeper := &recordingSleeper{}

	c, err := Connect(context.Background(), "http://localhost:3000", succeedOn(5, &calls), policy,
		WithSleeper(sleeper.sleep))

	require.NoError(t, err)
	assert.Equal(t, 5, c.id)
	assert.Equal(t, 5, calls)
	assert.Equal(t, 4000*time.Millisecond, sleeper.total())
}

func TestConnect_Exhausted(t *testing.T) {
	policy := MustPolicy(3, 1000*time.Millisecond)
	calls := 0
	sleeper := &recordingSleeper{}
	cause := errors.New("connection refused")

	c, err := Connect(context.Background(), "http://localhost:4444", func(ctx context.Context) (*conn, error) {
		calls++
		return nil, cause
	}, policy, WithSleeper(sleeper.sleep))

	assert.Nil(t, c)
	assert.Equal(t, 3, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, "http://localhost:4444", exhausted.Target)
	assert.ErrorIs(t, err, cause)

	// Two waits between three attempts; no trailing wait after the last failure.
	assert.Equal(t, 2000*time.Millisecond, sleeper.total())
}

func TestConnect_ExhaustedCarriesLastCause(t *testing.T) {
	calls := 0
	_, err := Connect(context.Background(), "target", func(ctx context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("failure %d", calls)
	}, MustPolicy(4, 0))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.EqualError(t, exhausted.LastCause, "failure 4")
	assert.Contains(t, err.Error(), "not ready after 4 attempts")
}

func TestConnect_SingleAttemptPolicy(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0

	_, err := Connect(context.Background(), "target", succeedOn(2, &calls), MustPolicy(1, time.Hour),
		WithSleeper(sleeper.sleep))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.waits)
}

func TestConnect_ZeroPolicyRejected(t *testing.T) {
	calls := 0
	_, err := Connect(context.Background(), "target", succeedOn(1, &calls), Policy{})
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	assert.Equal(t, 0, calls)
}

func TestConnect_ObserverSeesEveryFailure(t *testing.T) {
	var seen []Attempt
	calls := 0

	_, err := Connect(context.Background(), "target", succeedOn(3, &calls), MustPolicy(5, 0),
		WithObserver(func(a Attempt) { seen = append(seen, a) }))

	require.NoError(t, err)
	require.Len(t, seen, 2)
	for i, a := range seen {
		assert.Equal(t, i+1, a.Number)
		assert.Equal(t, 5, a.Max)
		assert.Equal(t, "target", a.Target)
		assert.Error(t, a.Err)
	}
}

func TestConnect_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cause := errors.New("connection refused")

	_, err := Connect(ctx, "target", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, cause
	}, MustPolicy(10, time.Hour))

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestConnect_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	_, err := Connect(ctx, "target", succeedOn(1, &calls), MustPolicy(3, 0))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestConnect_RealTimerWaits(t *testing.T) {
	policy := MustPolicy(4, 20*time.Millisecond)
	calls := 0

	start := time.Now()
	_, err := Connect(context.Background(), "target", succeedOn(3, &calls), policy)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestConnect_LogsEachFailedAttemptAtNormalLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New("readiness", logging.WithWriter(&buf), logging.WithLevel(logging.LevelNormal))
	require.NoError(t, err)
	calls := 0

	_, err = Connect(context.Background(), "http://localhost:3000", succeedOn(3, &calls), MustPolicy(5, 0),
		WithLogger(logger))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "attempt 1/5")
	assert.Contains(t, out, "attempt 2/5")
	assert.NotContains(t, out, "attempt 3/5")
}

func TestTimerSleep(t *testing.T) {
	assert.NoError(t, TimerSleep(context.Background(), 0))
	assert.NoError(t, TimerSleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, TimerSleep(ctx, time.Hour), context.Canceled)
}

package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	t.Parallel()

	attempts := []int{}
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		if attempt == 1 {
			return MarkTransient(errors.New("connection reset"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoNonTransientReturnsImmediately(t *testing.T) {
	t.Parallel()

	fatal := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustion(t *testing.T) {
	t.Parallel()

	boom := MarkTransient(errors.New("still down"))
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, exhausted, boom)
}

func TestDoCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(3)
	cfg.InitialBackoff = time.Hour

	errc := make(chan error, 1)
	go func() {
		errc <- Do(ctx, cfg, func(ctx context.Context, attempt int) error {
			return MarkTransient(errors.New("flaky"))
		})
	}()
	cancel()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoCustomClassifier(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("worth retrying")
	cfg := fastConfig(2)
	cfg.Classify = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		if attempt == 1 {
			return sentinel
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDefaultClassifier(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "marked_transient", err: MarkTransient(errors.New("reset")), want: true},
		{name: "wrapped_marked", err: errors.Join(errors.New("outer"), MarkTransient(errors.New("inner"))), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "http_429", err: &HTTPStatusError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}, want: true},
		{name: "http_503", err: &HTTPStatusError{StatusCode: http.StatusServiceUnavailable, Message: "down"}, want: true},
		{name: "http_400", err: &HTTPStatusError{StatusCode: http.StatusBadRequest, Message: "nope"}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DefaultClassifier(tc.err))
		})
	}
}

func TestBackoffGrowthIsCapped(t *testing.T) {
	t.Parallel()

	cfg := Config{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        400 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
	// With 10% jitter the delay stays within ±10% of the capped base.
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoffFor(cfg, attempt)
		assert.LessOrEqual(t, d, 440*time.Millisecond, "attempt %d", attempt)
		assert.Positive(t, d, "attempt %d", attempt)
	}
}

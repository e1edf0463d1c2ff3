package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyError struct{ retryable bool }

func (e *flakyError) Error() string     { return "flaky" }
func (e *flakyError) IsRetryable() bool { return e.retryable }

func fastConfig(maxRetries int) *Config {
	return &Config{MaxRetries: maxRetries, Multiplier: 2}
}

func TestDo_SucceedsFirstTime(t *testing.T) {
	attempts, err := Do(context.Background(), fastConfig(3), func(int) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	var seen []int
	attempts, err := Do(context.Background(), fastConfig(3), func(attempt int) error {
		seen = append(seen, attempt)
		if attempt < 2 {
			return &flakyError{retryable: true}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	attempts, err := Do(context.Background(), fastConfig(2), func(int) error {
		return &flakyError{retryable: true}
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "MaxRetries=2 means three calls")
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"declared non-retryable", &flakyError{retryable: false}},
		{"marked permanent", Permanent(errors.New("503 but give up"))},
		{"plain error", errors.New("syntax error at or near")},
		{"canceled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts, err := Do(context.Background(), fastConfig(5), func(int) error { return tt.err })
			assert.Equal(t, 1, attempts)
			assert.Error(t, err)
		})
	}
}

func TestDoWithResult_ReturnsLastValue(t *testing.T) {
	v, attempts, err := DoWithResult(context.Background(), fastConfig(1), func(attempt int) (string, error) {
		return fmt.Sprintf("try-%d", attempt), &flakyError{retryable: true}
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "try-1", v)
}

func TestDo_WaitsOnClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := &Config{MaxRetries: 1, InitialDelay: time.Second, Multiplier: 2, Clock: clock}

	done := make(chan int, 1)
	go func() {
		attempts, _ := Do(context.Background(), cfg, func(attempt int) error {
			if attempt == 0 {
				return &flakyError{retryable: true}
			}
			return nil
		})
		done <- attempts
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	select {
	case <-done:
		t.Fatal("retry must wait for the delay")
	default:
	}

	clock.Advance(time.Second)
	select {
	case attempts := <-done:
		assert.Equal(t, 2, attempts)
	case <-ctx.Done():
		t.Fatal("retry did not resume after the delay elapsed")
	}
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := &Config{MaxRetries: 3, InitialDelay: time.Minute, Clock: clock}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, cfg, func(int) error { return &flakyError{retryable: true} })
		done <- err
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-waitCtx.Done():
		t.Fatal("Do did not observe cancellation")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"declared retryable", &flakyError{retryable: true}, true},
		{"wrapped declared retryable", fmt.Errorf("call: %w", &flakyError{retryable: true}), true},
		{"declared permanent wins over pattern", Permanent(errors.New("503")), false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limited", errors.New("429 Too Many Requests"), true},
		{"overloaded", errors.New("anthropic: overloaded_error"), true},
		{"deadline", context.DeadlineExceeded, false},
		{"auth", errors.New("401 unauthorized"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestNextDelay_Capped(t *testing.T) {
	cfg := &Config{Multiplier: 3, MaxDelay: 500 * time.Millisecond}
	assert.Equal(t, 300*time.Millisecond, nextDelay(100*time.Millisecond, cfg))
	assert.Equal(t, 500*time.Millisecond, nextDelay(300*time.Millisecond, cfg))
}

package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &common.APIError{Code: -1003, Message: "too many requests"}, true},
		{"server timeout", &common.APIError{Code: -1007, Message: "timeout"}, true},
		{"order rejected", &common.APIError{Code: -2010, Message: "insufficient balance"}, false},
		{"bad symbol", &common.APIError{Code: -1121, Message: "invalid symbol"}, false},
		{"network timeout", timeoutErr{}, true},
		{"wrapped network timeout", errors.Join(errors.New("request failed"), timeoutErr{}), true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, 10*time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &common.APIError{Code: -1003}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryFailsFastOnNonRetryable(t *testing.T) {
	calls := 0
	rejected := &common.APIError{Code: -2010, Message: "insufficient balance"}
	err := retry(context.Background(), 3, time.Millisecond, 10*time.Millisecond, func() error {
		calls++
		return rejected
	})
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, 10*time.Millisecond, func() error {
		calls++
		return &common.APIError{Code: -1003}
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry(ctx, 5, time.Second, time.Minute, func() error {
		calls++
		return &common.APIError{Code: -1003}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	base := time.Second
	max := 8 * time.Second

	// Jitter adds at most 20% on top of the deterministic part.
	for attempt, want := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 8 * time.Second,
		6: 8 * time.Second, // capped
	} {
		got := retryDelay(attempt, base, max)
		assert.GreaterOrEqual(t, got, want, "attempt %d", attempt)
		assert.LessOrEqual(t, got, want+want/5, "attempt %d", attempt)
	}
}

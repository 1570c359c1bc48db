package resilience

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundry-bot/partner-research/internal/model"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoVal_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := DoVal(context.Background(), fastRetry(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("upstream 503"), 503)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDoVal_NonTransientFailsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := DoVal(context.Background(), fastRetry(3), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := DoVal(context.Background(), fastRetry(3), func(ctx context.Context) (string, error) {
		calls++
		return "", NewTransientError(errors.New("still down"), 502)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoVal_ContextCancelStopsRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastRetry(5), func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", NewTransientError(errors.New("down"), 502)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("validation failed")))
	assert.True(t, IsTransient(NewTransientError(errors.New("503"), 503)))
	assert.True(t, IsTransient(syscall.ECONNRESET))
	assert.True(t, IsTransient(errors.New("read tcp: i/o timeout")))
	assert.True(t, IsTransient(errors.New("dial tcp: lookup x: no such host")))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, model.KindRateLimited, KindOf(NewTransientError(errors.New("429"), 429)))
	assert.Equal(t, model.KindFetchError, KindOf(NewTransientError(errors.New("503"), 503)))
	assert.Equal(t, model.KindFetchError, KindOf(errors.New("parse failure")))
}

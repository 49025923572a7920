package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantRetry(maxRetries int) (RetryConfig, *[]time.Duration) {
	var waits []time.Duration
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = maxRetries
	cfg.Jitter = func() float64 { return 0 }
	cfg.Sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return cfg, &waits
}

func TestExecute_SucceedsAfterRetryableFailures(t *testing.T) {
	cfg, waits := instantRetry(3)

	calls := 0
	res := Execute(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", errors.New("upstream error: status 503")
		}
		return "ok", nil
	})

	require.True(t, res.OK())
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestExecute_NonRetryableStopsImmediately(t *testing.T) {
	cfg, waits := instantRetry(3)

	res := Execute(context.Background(), cfg, func(ctx context.Context) (int, error) {
		return 0, errors.New("invalid api key")
	})

	assert.False(t, res.OK())
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Exhausted)
	assert.EqualError(t, res.Err, "invalid api key")
	assert.Empty(t, *waits)
}

func TestExecute_ExhaustsBudget(t *testing.T) {
	cfg, _ := instantRetry(2)

	res := Do(context.Background(), cfg, func(ctx context.Context) error {
		return errors.New("request timeout")
	})

	assert.False(t, res.OK())
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, res.Exhausted)
}

func TestExecute_EmptyPatternsRetryEverything(t *testing.T) {
	cfg, _ := instantRetry(1)
	cfg.RetryablePatterns = nil

	calls := 0
	res := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("something odd")
		}
		return nil
	})

	assert.True(t, res.OK())
	assert.Equal(t, 2, res.Attempts)
}

func TestExecute_StopsWhenContextCancelledDuringWait(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	res := Do(ctx, cfg, func(ctx context.Context) error {
		calls++
		return errors.New("429 rate_limit")
	})

	assert.False(t, res.OK())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Attempts)
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, cfg.Backoff(0, 0))
	assert.Equal(t, 4*time.Second, cfg.Backoff(2, 0))
	assert.Equal(t, 1100*time.Millisecond, cfg.Backoff(0, 0.1))
	assert.Equal(t, 5*time.Second, cfg.Backoff(3, 0))
	assert.Equal(t, 5*time.Second, cfg.Backoff(10, 0.19))
}

func TestDefaultJitterRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		j := defaultJitter()
		assert.GreaterOrEqual(t, j, 0.0)
		assert.Less(t, j, 0.2)
	}
}

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		patterns []string
		want     bool
	}{
		{"substring case insensitive", "Rate_Limit exceeded", []string{"rate_limit"}, true},
		{"status code", "upstream error: status 502 (Bad Gateway)", DefaultRetryablePatterns, true},
		{"regex", "HTTP 599", []string{`re:HTTP 5\d\d`}, true},
		{"no match", "invalid_request_error", DefaultRetryablePatterns, false},
		{"bad regex ignored", "x", []string{"re:("}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesAny(tt.text, tt.patterns))
		})
	}
}

func TestCompilePattern_Cached(t *testing.T) {
	first := compilePattern(`status 5\d\d`)
	require.NotNil(t, first)
	assert.Same(t, first, compilePattern(`status 5\d\d`))
	assert.Nil(t, compilePattern("("))
	assert.Nil(t, compilePattern("("))
}

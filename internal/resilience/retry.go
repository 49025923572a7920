package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultRetryablePatterns match transport failures, throttling and gateway errors.
var DefaultRetryablePatterns = []string{
	"ECONNRESET",
	"ETIMEDOUT",
	"ENOTFOUND",
	"ECONNREFUSED",
	"connection reset",
	"connection refused",
	"no such host",
	"rate_limit",
	"rate limit",
	"timeout",
	"429",
	"502",
	"503",
	"504",
}

// RetryConfig controls Execute.
type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier" validate:"gte=1"`
	// RetryablePatterns are case-insensitive substrings of the error text.
	// A "re:" prefix marks a regular expression. Empty means retry everything.
	RetryablePatterns []string `mapstructure:"retryable_patterns"`

	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `mapstructure:"-"`
	// Sleep and Jitter replace the real clock and random source in tests.
	Sleep  func(ctx context.Context, d time.Duration) error `mapstructure:"-"`
	Jitter func() float64                                  `mapstructure:"-"`
}

// DefaultRetryConfig returns 3 retries, 1s initial delay doubling up to 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		Multiplier:        2,
		RetryablePatterns: append([]string(nil), DefaultRetryablePatterns...),
	}
}

// WithMaxRetries returns a copy of c with a different retry budget.
func (c RetryConfig) WithMaxRetries(n int) RetryConfig {
	c.MaxRetries = n
	return c
}

// Result is the tagged outcome of Execute. Err is nil on success.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
	// Exhausted is set when the last attempt failed with a retryable error.
	Exhausted bool
}

// OK reports whether the operation eventually succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Execute runs op up to MaxRetries+1 times and never panics or returns a
// bare error: the caller inspects the Result.
func Execute[T any](ctx context.Context, cfg RetryConfig, op func(ctx context.Context) (T, error)) Result[T] {
	maxAttempts := cfg.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	jitter := cfg.Jitter
	if jitter == nil {
		jitter = defaultJitter
	}

	var res Result[T]
	for n := 0; n < maxAttempts; n++ {
		res.Attempts++
		v, err := op(ctx)
		if err == nil {
			res.Value = v
			res.Err = nil
			return res
		}
		res.Err = err

		if ctx.Err() != nil || !cfg.Retryable(err) {
			return res
		}
		if n == maxAttempts-1 {
			res.Exhausted = true
			return res
		}

		delay := cfg.Backoff(n, jitter())
		if cfg.OnRetry != nil {
			cfg.OnRetry(res.Attempts, err, delay)
		}
		if sleep(ctx, delay) != nil {
			return res
		}
	}
	return res
}

// Do is Execute for operations without a value.
func Do(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) Result[struct{}] {
	return Execute(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
}

// Backoff returns the wait after failed attempt n (0-indexed):
// min(InitialDelay * Multiplier^n * (1+jitter), MaxDelay).
func (c RetryConfig) Backoff(n int, jitter float64) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.InitialDelay) * math.Pow(mult, float64(n)) * (1 + jitter)
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Retryable classifies err against the configured patterns.
func (c RetryConfig) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if len(c.RetryablePatterns) == 0 {
		return true
	}
	return MatchesAny(err.Error(), c.RetryablePatterns)
}

// MatchesAny reports whether text matches one of the patterns.
func MatchesAny(text string, patterns []string) bool {
	lower := strings.ToLower(text)
	for _, p := range patterns {
		if expr, ok := strings.CutPrefix(p, "re:"); ok {
			if re := compilePattern(expr); re != nil && re.MatchString(text) {
				return true
			}
			continue
		}
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// compiledPatterns caches compiled "re:" expressions; invalid ones are stored as nil.
var compiledPatterns sync.Map

func compilePattern(expr string) *regexp.Regexp {
	if v, ok := compiledPatterns.Load(expr); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		re = nil
	}
	v, _ := compiledPatterns.LoadOrStore(expr, re)
	return v.(*regexp.Regexp)
}

func defaultJitter() float64 {
	return rand.Float64() * 0.2
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

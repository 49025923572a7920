package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func newTestBreaker(clock *fakeClock, threshold, halfOpen int) *Breaker {
	return NewBreaker("llm:test", BreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     10 * time.Second,
		HalfOpenMaxCalls: halfOpen,
	}, WithClock(clock.Now))
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock, 3, 1)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(context.Background(), fail), errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not invoke the operation")
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock, 2, 1)

	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(9 * time.Second)
	assert.ErrorIs(t, b.Execute(context.Background(), succeed), ErrCircuitOpen)

	clock.Advance(time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen, "only one probe is admitted")

	b.Record(nil)
	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 0, snap.FailureCount)
}

func TestBreaker_HalfOpenFailureReopensAndRestartsTimer(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock, 1, 2)

	_ = b.Execute(context.Background(), fail)
	clock.Advance(10 * time.Second)

	assert.ErrorIs(t, b.Execute(context.Background(), fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	clock.Advance(5 * time.Second)
	assert.ErrorIs(t, b.Execute(context.Background(), succeed), ErrCircuitOpen)

	clock.Advance(5 * time.Second)
	assert.NoError(t, b.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_SuccessDecrementsFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock, 3, 1)

	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), succeed)
	assert.Equal(t, 1, b.Snapshot().FailureCount)

	_ = b.Execute(context.Background(), succeed)
	_ = b.Execute(context.Background(), succeed)
	assert.Equal(t, 0, b.Snapshot().FailureCount, "count is floored at zero")

	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock, 1, 1)

	err := b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_StateChangeCallbackAndReset(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var transitions []string
	b := NewBreaker("publish", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second, HalfOpenMaxCalls: 1},
		WithClock(clock.Now),
		WithStateChange(func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		}),
	)

	_ = b.Execute(context.Background(), fail)
	b.Reset()

	assert.Equal(t, []string{"publish:closed->open", "publish:open->closed"}, transitions)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ConcurrentAccess(t *testing.T) {
	b := NewBreaker("llm:race", BreakerConfig{FailureThreshold: 1000, ResetTimeout: time.Second, HalfOpenMaxCalls: 1})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = b.Execute(context.Background(), fail)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 1000, b.Snapshot().FailureCount)
}

func TestExecuteValue(t *testing.T) {
	b := NewBreaker("llm:value", DefaultBreakerConfig())
	v, err := ExecuteValue(context.Background(), b, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestBreakers_PresetsAndReset(t *testing.T) {
	reg := NewBreakers(DefaultBreakerConfig(), DefaultPresets())

	llm := reg.Get(LLMDependency("anthropic"))
	assert.Same(t, llm, reg.Get("llm:anthropic"))
	assert.Equal(t, 3, llm.cfg.FailureThreshold)
	assert.Equal(t, 120*time.Second, llm.cfg.ResetTimeout)

	pub := reg.Get(PublishDependency)
	assert.Equal(t, 30*time.Second, pub.cfg.ResetTimeout)

	other := reg.Get("search")
	assert.Equal(t, 5, other.cfg.FailureThreshold)

	for i := 0; i < 3; i++ {
		llm.Record(errBoom)
	}
	require.Equal(t, StateOpen, llm.State())

	assert.True(t, reg.Reset("llm:anthropic"))
	assert.False(t, reg.Reset("missing"))
	assert.Equal(t, StateClosed, llm.State())

	names := []string{}
	for _, s := range reg.Snapshots() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"llm:anthropic", "publish", "search"}, names)
}

func TestBreaker_CancelledHalfOpenCallReleasesSlot(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock, 1, 1)

	require.ErrorIs(t, b.Execute(context.Background(), fail), errBoom)
	clock.Advance(11 * time.Second)

	err := b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.Equal(t, 0, b.Snapshot().HalfOpenCalls)

	called := false
	require.NoError(t, b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_CallerDeadlineDoesNotTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().FailureCount)
}

func TestBreaker_SettleRecordsWhileCallerIsLive(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock, 1, 1)

	require.NoError(t, b.Allow())
	b.Settle(context.Background(), context.DeadlineExceeded)
	assert.Equal(t, StateOpen, b.State(), "an attempt timeout under a live caller still counts")
}

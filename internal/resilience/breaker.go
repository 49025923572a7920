package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned when a breaker rejects a call without running it.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// State of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BreakerConfig configures one breaker.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"gte=1"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	HalfOpenMaxCalls int           `mapstructure:"half_open_max_calls" validate:"gte=1"`
}

// DefaultBreakerConfig trips after 5 failures and probes again after a minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// Snapshot is a point-in-time copy of a breaker's state.
type Snapshot struct {
	Name          string    `json:"name"`
	State         State     `json:"state"`
	FailureCount  int       `json:"failure_count"`
	LastFailure   time.Time `json:"last_failure,omitempty"`
	HalfOpenCalls int       `json:"half_open_calls"`
}

// BreakerOption customizes a breaker.
type BreakerOption func(*Breaker)

// WithClock injects the time source.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// WithStateChange registers a transition callback. It runs with the breaker
// lock held and must not call back into the breaker.
func WithStateChange(fn func(name string, from, to State)) BreakerOption {
	return func(b *Breaker) { b.onStateChange = fn }
}

// WithTripFilter decides which errors count as failures.
func WithTripFilter(fn func(error) bool) BreakerOption {
	return func(b *Breaker) { b.shouldTrip = fn }
}

// Breaker guards a single logical dependency.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	halfOpenCalls int

	now           func() time.Time
	onStateChange func(name string, from, to State)
	shouldTrip    func(error) bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.HalfOpenMaxCalls < 1 {
		cfg.HalfOpenMaxCalls = 1
	}
	b := &Breaker{
		name:       name,
		cfg:        cfg,
		now:        time.Now,
		shouldTrip: defaultShouldTrip,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func defaultShouldTrip(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Name returns the dependency name.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.Settle(ctx, err)
	return err
}

// ExecuteValue is Execute for functions returning a value.
func ExecuteValue[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := b.Allow(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn(ctx)
	b.Settle(ctx, err)
	return v, err
}

// Allow admits or rejects one call, moving an expired open circuit to half-open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.cfg.ResetTimeout {
			return eris.Wrapf(ErrCircuitOpen, "dependency %s", b.name)
		}
		b.transition(StateHalfOpen)
		b.halfOpenCalls = 1
		return nil
	case StateHalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			return eris.Wrapf(ErrCircuitOpen, "dependency %s is probing", b.name)
		}
		b.halfOpenCalls++
		return nil
	default:
		return nil
	}
}

// Record feeds the outcome of an admitted call back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.onSuccess()
		return
	}
	if !b.shouldTrip(err) {
		b.release()
		return
	}
	b.onFailure()
}

// Settle records err unless ctx itself has ended, in which case the
// admission is released without an outcome.
func (b *Breaker) Settle(ctx context.Context, err error) {
	if ctx.Err() != nil {
		b.Release()
		return
	}
	b.Record(err)
}

// Release returns the admission of a call that ended without an outcome.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release()
}

func (b *Breaker) release() {
	if b.state == StateHalfOpen && b.halfOpenCalls > 0 {
		b.halfOpenCalls--
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateHalfOpen:
		b.failures = 0
		b.halfOpenCalls = 0
		b.transition(StateClosed)
	case StateClosed:
		if b.failures > 0 {
			b.failures--
		}
	}
}

func (b *Breaker) onFailure() {
	b.lastFailure = b.now()
	switch b.state {
	case StateHalfOpen:
		b.halfOpenCalls = 0
		b.transition(StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker's counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:          b.name,
		State:         b.state,
		FailureCount:  b.failures,
		LastFailure:   b.lastFailure,
		HalfOpenCalls: b.halfOpenCalls,
	}
}

// Reset forces the breaker closed with zeroed counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.halfOpenCalls = 0
	b.lastFailure = time.Time{}
	b.transition(StateClosed)
}

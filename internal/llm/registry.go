package llm

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Loader returns the current set of provider descriptors.
type Loader func(ctx context.Context) ([]Descriptor, error)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLoader makes the registry re-read descriptors from load once ttl has elapsed.
func WithLoader(load Loader, ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.loader = load
		r.ttl = ttl
	}
}

// WithRegistryClock injects the time source used for the TTL.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// Registry holds the provider instances of the process, keyed by name.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	descriptors map[string]Descriptor

	refreshMu sync.Mutex
	loader    Loader
	ttl       time.Duration
	loadedAt  time.Time
	now       func() time.Time

	logger   *zap.Logger
	validate *validator.Validate
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		providers:   make(map[string]Provider),
		descriptors: make(map[string]Descriptor),
		now:         time.Now,
		logger:      logger,
		validate:    validator.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a prebuilt provider that is not managed by descriptors.
func (r *Registry) Add(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Sync builds providers for the given descriptors. Unchanged descriptors
// keep their instance; disabled or uncredentialed ones are dropped.
func (r *Registry) Sync(descs []Descriptor) int {
	next := make(map[string]Descriptor, len(descs))
	for _, d := range descs {
		next[d.Name] = d
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.descriptors {
		if _, ok := next[name]; !ok {
			delete(r.descriptors, name)
			delete(r.providers, name)
		}
	}

	active := 0
	for name, d := range next {
		if !d.Usable() {
			r.logger.Debug("Skipping provider", zap.String("provider", name),
				zap.Bool("enabled", d.Enabled), zap.Bool("has_credentials", d.APIKey != ""))
			delete(r.descriptors, name)
			delete(r.providers, name)
			continue
		}
		if old, ok := r.descriptors[name]; ok && reflect.DeepEqual(old, d) {
			active++
			continue
		}
		if err := r.validate.Struct(d); err != nil {
			r.logger.Error("Invalid provider descriptor", zap.String("provider", name), zap.Error(err))
			continue
		}

		factory, err := Lookup(d.FactoryType())
		if err != nil {
			r.logger.Error("Provider type not supported", zap.String("provider", name), zap.String("type", d.FactoryType()), zap.Error(err))
			continue
		}
		p, err := factory(d)
		if err != nil {
			r.logger.Error("Failed to create provider", zap.String("provider", name), zap.Error(err))
			continue
		}

		r.providers[name] = p
		r.descriptors[name] = d
		active++
		r.logger.Info("Provider registered",
			zap.String("provider", name),
			zap.String("kind", string(d.Kind)),
			zap.String("default_model", d.DefaultModel),
		)
	}
	return active
}

// Refresh re-reads descriptors when the TTL has expired. Load failures keep
// the current set. Concurrent callers do not wait for an in-flight refresh.
func (r *Registry) Refresh(ctx context.Context) {
	if r.loader == nil || !r.stale() {
		return
	}
	if !r.refreshMu.TryLock() {
		return
	}
	defer r.refreshMu.Unlock()
	if !r.stale() {
		return
	}

	descs, err := r.loader(ctx)
	if err != nil {
		r.logger.Warn("Provider descriptors unavailable, keeping current set", zap.Error(err))
		r.mu.Lock()
		r.loadedAt = r.now()
		r.mu.Unlock()
		return
	}
	r.Sync(descs)

	r.mu.Lock()
	r.loadedAt = r.now()
	r.mu.Unlock()
}

func (r *Registry) stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt.IsZero() || r.now().Sub(r.loadedAt) >= r.ttl
}

// Get returns the provider registered under name.
func (r *Registry) Get(ctx context.Context, name string) (Provider, bool) {
	r.Refresh(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// DefaultModel returns the default model of a provider, from its descriptor
// when known. It returns "" for unknown providers.
func (r *Registry) DefaultModel(ctx context.Context, name string) string {
	r.Refresh(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.descriptors[name]; ok {
		return d.DefaultModel
	}
	if p, ok := r.providers[name]; ok {
		return p.DefaultModel()
	}
	return ""
}

// List returns every provider ordered by descriptor priority, then name.
func (r *Registry) List(ctx context.Context) []Provider {
	r.Refresh(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := r.descriptors[out[i].Name()].Priority, r.descriptors[out[j].Name()].Priority
		if pi != pj {
			return pi < pj
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Descriptor returns the descriptor a provider was built from.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

package routing

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/internal/platform/metrics"
	"github.com/nulzo/content-orchestrator/internal/store/cache"
)

var (
	// ErrUnknownTask is returned when neither the store nor the static table
	// knows a task type.
	ErrUnknownTask = eris.New("unknown task type")
	// ErrConfigUnavailable marks a failed or empty store read. It is logged
	// and recovered with the static table, never returned by Resolve.
	ErrConfigUnavailable = eris.New("configuration store unavailable")
)

const (
	DefaultCacheTTL     = 60 * time.Second
	DefaultFetchTimeout = 5 * time.Second

	routesKey    = "routing:task-routes"
	providersKey = "routing:provider-settings"
)

type Config struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// routeSet and providerSet are the cached values. Static marks a fallback
// to the compiled-in table.
type routeSet struct {
	Routes []TaskRoute `json:"routes"`
	Static bool        `json:"static"`
}

type providerSet struct {
	Providers []llm.Descriptor `json:"providers"`
	Static    bool             `json:"static"`
}

type Option func(*Router)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithEnv replaces the environment lookup used to resolve credentials.
func WithEnv(getenv func(string) string) Option {
	return func(r *Router) { r.getenv = getenv }
}

func WithTable(t *Table) Option {
	return func(r *Router) { r.table = t }
}

// Router resolves task routes and provider descriptors from the store, with
// a TTL cache refreshed lazily on first use after expiry.
type Router struct {
	source  Source
	cache   cache.CacheService
	table   *Table
	cfg     Config
	group   singleflight.Group
	logger  *zap.Logger
	metrics *metrics.Metrics
	getenv  func(string) string
}

// NewRouter creates a router. A nil source always uses the static table.
func NewRouter(source Source, c cache.CacheService, cfg Config, logger *zap.Logger, opts ...Option) *Router {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if c == nil {
		c = cache.NewMemoryCache()
	}
	r := &Router{
		source: source,
		cache:  c,
		table:  DefaultTable(),
		cfg:    cfg,
		logger: logger,
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the route of task. Only a task unknown to both the store
// and the static table is an error.
func (r *Router) Resolve(ctx context.Context, task string) (TaskRoute, error) {
	set := r.routes(ctx)
	for _, route := range set.Routes {
		if route.Task == task {
			return route, nil
		}
	}
	if !set.Static {
		if route, ok := r.table.Route(task); ok {
			r.logger.Debug("Task missing from store, using static route", zap.String("task", task))
			return route, nil
		}
	}
	return TaskRoute{}, eris.Wrapf(ErrUnknownTask, "task %q", task)
}

// Routes returns every known route.
func (r *Router) Routes(ctx context.Context) ([]TaskRoute, bool) {
	set := r.routes(ctx)
	return set.Routes, set.Static
}

// Providers returns the provider descriptors with credentials resolved from
// the environment. It satisfies llm.Loader.
func (r *Router) Providers(ctx context.Context) ([]llm.Descriptor, error) {
	var set providerSet
	if err := r.cache.Get(ctx, providersKey, &set); err != nil {
		v, _, _ := r.group.Do(providersKey, func() (interface{}, error) {
			s := r.loadProviders(ctx)
			r.store(ctx, providersKey, s)
			return s, nil
		})
		set = v.(providerSet)
	}

	out := make([]llm.Descriptor, len(set.Providers))
	for i, d := range set.Providers {
		out[i] = llm.ResolveCredentials(d, r.getenv)
	}
	return out, nil
}

// Invalidate drops the cached documents; the next call refetches.
func (r *Router) Invalidate(ctx context.Context) error {
	r.group.Forget(routesKey)
	r.group.Forget(providersKey)
	if err := r.cache.Delete(ctx, routesKey); err != nil {
		return err
	}
	return r.cache.Delete(ctx, providersKey)
}

func (r *Router) routes(ctx context.Context) routeSet {
	var set routeSet
	if err := r.cache.Get(ctx, routesKey, &set); err == nil {
		return set
	} else if !errors.Is(err, cache.ErrMiss) {
		r.logger.Warn("Routing cache read failed", zap.Error(err))
	}

	v, _, _ := r.group.Do(routesKey, func() (interface{}, error) {
		s := r.loadRoutes(ctx)
		r.store(ctx, routesKey, s)
		return s, nil
	})
	return v.(routeSet)
}

func (r *Router) store(ctx context.Context, key string, value interface{}) {
	if err := r.cache.Set(ctx, key, value, r.cfg.CacheTTL); err != nil {
		r.logger.Warn("Routing cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// fetchContext detaches the fetch from the first caller so a cancelled
// request does not fail the collapsed refresh for everyone else.
func (r *Router) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.cfg.FetchTimeout)
}

func (r *Router) loadRoutes(ctx context.Context) routeSet {
	if r.source == nil {
		return routeSet{Routes: r.table.Routes, Static: true}
	}
	fctx, cancel := r.fetchContext(ctx)
	defer cancel()

	routes, err := r.source.TaskRoutes(fctx)
	if err == nil && len(routes) == 0 {
		err = eris.New("no task routes returned")
	}
	if err != nil {
		r.fallback("task-routing", err)
		return routeSet{Routes: r.table.Routes, Static: true}
	}
	r.logger.Info("Loaded task routes from store", zap.Int("count", len(routes)))
	return routeSet{Routes: routes}
}

func (r *Router) loadProviders(ctx context.Context) providerSet {
	if r.source == nil {
		return providerSet{Providers: r.table.Providers, Static: true}
	}
	fctx, cancel := r.fetchContext(ctx)
	defer cancel()

	descs, err := r.source.ProviderSettings(fctx)
	if err == nil && len(descs) == 0 {
		err = eris.New("no provider settings returned")
	}
	if err != nil {
		r.fallback("provider-settings", err)
		return providerSet{Providers: r.table.Providers, Static: true}
	}
	r.logger.Info("Loaded provider settings from store", zap.Int("count", len(descs)))
	return providerSet{Providers: descs}
}

func (r *Router) fallback(resource string, err error) {
	r.logger.Warn("Using static configuration",
		zap.String("resource", resource),
		zap.Error(eris.Wrap(ErrConfigUnavailable, err.Error())),
	)
	r.metrics.ConfigFallback(resource)
}

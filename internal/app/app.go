// Package app wires configuration into the running services.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/config"
	"github.com/nulzo/content-orchestrator/internal/cost"
	"github.com/nulzo/content-orchestrator/internal/dedup"
	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/internal/notify"
	"github.com/nulzo/content-orchestrator/internal/orchestrator"
	"github.com/nulzo/content-orchestrator/internal/platform/logger"
	"github.com/nulzo/content-orchestrator/internal/platform/metrics"
	"github.com/nulzo/content-orchestrator/internal/platform/otel"
	"github.com/nulzo/content-orchestrator/internal/publish"
	"github.com/nulzo/content-orchestrator/internal/resilience"
	"github.com/nulzo/content-orchestrator/internal/routing"
	"github.com/nulzo/content-orchestrator/internal/server"
	"github.com/nulzo/content-orchestrator/internal/store"
	"github.com/nulzo/content-orchestrator/internal/store/cache"
	"github.com/nulzo/content-orchestrator/internal/store/memory"
	"github.com/nulzo/content-orchestrator/internal/store/sqlite"

	// vendor adapters register their factories in init()
	_ "github.com/nulzo/content-orchestrator/internal/llm/anthropic"
	_ "github.com/nulzo/content-orchestrator/internal/llm/compat"
	_ "github.com/nulzo/content-orchestrator/internal/llm/google"
	_ "github.com/nulzo/content-orchestrator/internal/llm/leonardo"
	_ "github.com/nulzo/content-orchestrator/internal/llm/openai"
	_ "github.com/nulzo/content-orchestrator/internal/llm/replicate"
	_ "github.com/nulzo/content-orchestrator/internal/llm/stability"
)

// RegistryTTL bounds how stale provider descriptors may get.
const RegistryTTL = routing.DefaultCacheTTL

// App holds every long-lived service built from one configuration.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Repo         store.Repository
	Cache        cache.CacheService
	Router       *routing.Router
	Registry     *llm.Registry
	Breakers     *resilience.Breakers
	Tracker      *cost.Tracker
	Orchestrator *orchestrator.Orchestrator
	Dedup        *dedup.Store
	Publisher    *publish.Publisher
	Notifier     notify.Notifier
	Metrics      *metrics.Metrics

	closers []func(context.Context) error
}

// New builds the application. Close must be called to release storage and
// flush traces.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.Initialize(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		EnableColor: logger.DefaultConfig().EnableColor,
		Service:     "content-orchestrator",
	})
	log := logger.Get()

	a := &App{Config: cfg, Logger: log}

	shutdownTracer, err := otel.InitTracer(cfg.Tracing, logger.Named("otel"), os.Stdout)
	if err != nil {
		return nil, eris.Wrap(err, "failed to initialize tracing")
	}
	a.closers = append(a.closers, shutdownTracer)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(reg)

	if err := a.openStorage(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	if err := a.buildRouting(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	presets := resilience.DefaultPresets()
	for name, p := range cfg.Breakers.Presets {
		presets[name] = p
	}
	breakerLog := logger.Named("breaker")
	a.Breakers = resilience.NewBreakers(cfg.Breakers.Default, presets,
		resilience.WithStateChange(func(name string, from, to resilience.State) {
			breakerLog.Warn("Circuit breaker state changed",
				zap.String("dependency", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
			a.Metrics.BreakerState(name, int(to))
		}),
	)

	a.Tracker = cost.NewTracker(a.Repo, cfg.Costs, logger.Named("cost"))
	a.Orchestrator = orchestrator.New(a.Registry, a.Router, a.Tracker, a.Breakers, cfg.Retry, logger.Named("orchestrator"),
		orchestrator.WithMetrics(a.Metrics),
	)

	a.Dedup = dedup.New(a.Repo.Content(), logger.Named("dedup"))
	if cfg.Publish.URL != "" {
		client := publish.NewPayloadClient(cfg.Publish.URL, cfg.Publish.Token, &http.Client{Timeout: cfg.Publish.Timeout})
		a.Publisher = publish.NewPublisher(client, a.Dedup, a.Breakers, cfg.Retry, logger.Named("publish"),
			publish.WithMetrics(a.Metrics),
		)
	}

	a.Notifier = buildNotifier(cfg.Notify, log)

	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Storage.Driver {
	case "memory":
		a.Repo = memory.New()
	default:
		repo, err := sqlite.NewSQLiteStorage(cfg.Storage.DSN, logger.Named("sqlite"))
		if err != nil {
			return eris.Wrap(err, "failed to open ledger")
		}
		a.Repo = repo
	}
	a.closers = append(a.closers, func(context.Context) error { return a.Repo.Close() })

	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(ctx, cfg.Redis.URL, cfg.Redis.Prefix)
		if err != nil {
			return eris.Wrap(err, "failed to connect to redis")
		}
		a.Cache = rc
		a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
	} else {
		a.Cache = cache.NewMemoryCache()
	}
	return nil
}

func (a *App) buildRouting(ctx context.Context) error {
	cfg := a.Config
	opts := []routing.Option{routing.WithMetrics(a.Metrics)}
	if cfg.Routing.TablePath != "" {
		tbl, err := routing.LoadTable(cfg.Routing.TablePath)
		if err != nil {
			return eris.Wrap(err, "failed to load routing table")
		}
		opts = append(opts, routing.WithTable(tbl))
	}

	var source routing.Source
	if cfg.Routing.StoreURL != "" {
		source = routing.NewHTTPSource(cfg.Routing.StoreURL, cfg.Routing.StoreToken, &http.Client{Timeout: cfg.Routing.FetchTimeout})
	}
	a.Router = routing.NewRouter(source, a.Cache, cfg.Routing.Router(), logger.Named("routing"), opts...)

	a.Registry = llm.NewRegistry(logger.Named("registry"), llm.WithLoader(mergeProviders(a.Router.Providers, cfg.Providers), RegistryTTL))
	a.Registry.Refresh(ctx)
	return nil
}

// mergeProviders lays configured descriptors over the routed ones by name.
// When the router fails the configured set is still served.
func mergeProviders(load llm.Loader, configured []llm.Descriptor) llm.Loader {
	return func(ctx context.Context) ([]llm.Descriptor, error) {
		routed, err := load(ctx)
		if err != nil && len(configured) == 0 {
			return nil, err
		}
		out := make([]llm.Descriptor, 0, len(routed)+len(configured))
		index := make(map[string]int, len(routed))
		for _, d := range routed {
			index[d.Name] = len(out)
			out = append(out, d)
		}
		for _, d := range configured {
			if i, ok := index[d.Name]; ok {
				out[i] = d
				continue
			}
			out = append(out, d)
		}
		return out, nil
	}
}

func buildNotifier(cfg config.NotifyConfig, log *zap.Logger) notify.Notifier {
	sinks := notify.Multi{notify.NewLogNotifier(log.Named("notify"))}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		sinks = append(sinks, notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, &http.Client{Timeout: 10 * time.Second}))
	}
	return sinks
}

// Server returns the HTTP server for this application.
func (a *App) Server(version string) *server.Server {
	return server.New(a.Config, a.Logger, server.Deps{
		Orchestrator: a.Orchestrator,
		Tracker:      a.Tracker,
		Breakers:     a.Breakers,
		Router:       a.Router,
		Registry:     a.Registry,
		Publisher:    a.Publisher,
		Dedup:        a.Dedup,
		Notifier:     a.Notifier,
		Metrics:      a.Metrics,
		Version:      version,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	logger.Sync()
	return errors.Join(errs...)
}

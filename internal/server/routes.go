package server

import (
	"github.com/gin-gonic/gin"

	"github.com/nulzo/content-orchestrator/internal/platform/logger"
	"github.com/nulzo/content-orchestrator/internal/server/middleware"
	v1 "github.com/nulzo/content-orchestrator/internal/server/v1"
	"github.com/nulzo/content-orchestrator/internal/server/validator"
)

func (s *Server) SetupRoutes() {
	d := s.deps

	if s.config.Tracing.Enabled {
		s.router.Use(middleware.Tracing(s.config.Tracing.ServiceName))
	}
	s.router.Use(middleware.ErrorHandler(s.logger))

	healthHandler := v1.NewHealthHandler(d.Version, d.Registry)
	s.router.GET("/health", healthHandler.Health)
	if d.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	v := validator.New()
	cmsURL := s.config.Publish.URL

	api := s.router.Group("/v1")
	if rl := s.config.RateLimit; rl.RequestsPerSecond > 0 {
		api.Use(middleware.NewRateLimiter(rl.RequestsPerSecond, rl.Burst, logger.Named("ratelimit")).Middleware())
	}
	api.Use(middleware.Auth(s.config.Server.APIKey))
	{
		gen := v1.NewGenerationHandler(d.Orchestrator, d.Notifier, s.config.Batch.Interval, v, s.logger)
		api.POST("/dispatch", gen.Dispatch)
		api.POST("/stream", gen.Stream)
		api.POST("/batch", gen.Batch)

		costs := v1.NewCostsHandler(d.Tracker)
		api.GET("/costs/summary", costs.Summary)
		api.GET("/costs/recent", costs.Recent)
		api.GET("/costs/limits", costs.Limits)
		api.POST("/costs/cleanup", costs.Cleanup)
		api.DELETE("/costs", costs.Reset)

		ops := v1.NewOpsHandler(d.Breakers, d.Router, d.Registry)
		api.GET("/breakers", ops.Breakers)
		api.POST("/breakers/reset", ops.ResetAll)
		api.POST("/breakers/:name/reset", ops.ResetBreaker)
		api.GET("/routes", ops.Routes)
		api.GET("/routes/:task", ops.Route)
		api.GET("/providers", ops.Providers)
		api.POST("/cache/invalidate", ops.InvalidateCache)

		pub := v1.NewPublishHandler(d.Publisher, d.Dedup, d.Notifier, cmsURL, v, s.logger)
		api.POST("/publish", pub.Publish)
		api.POST("/content/decide", pub.Decide)
		api.GET("/content/:type", pub.List)
		api.DELETE("/content/:type/:slug", pub.Delete)
	}
}

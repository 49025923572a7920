package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/internal/resilience"
	"github.com/nulzo/content-orchestrator/internal/routing"
	"github.com/nulzo/content-orchestrator/pkg/api"
)

// OpsHandler exposes breakers, routes and providers to operators.
type OpsHandler struct {
	breakers *resilience.Breakers
	router   *routing.Router
	registry *llm.Registry
}

func NewOpsHandler(breakers *resilience.Breakers, router *routing.Router, registry *llm.Registry) *OpsHandler {
	return &OpsHandler{breakers: breakers, router: router, registry: registry}
}

// GET /v1/breakers
func (h *OpsHandler) Breakers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"breakers": h.breakers.Snapshots()})
}

// ResetBreaker closes one breaker, e.g. "llm:openai" or "publish".
// POST /v1/breakers/:name/reset
func (h *OpsHandler) ResetBreaker(c *gin.Context) {
	name := c.Param("name")
	if !h.breakers.Reset(name) {
		_ = c.Error(api.NotFoundError("No breaker named " + name + "."))
		return
	}
	c.JSON(http.StatusOK, h.breakers.Get(name).Snapshot())
}

// POST /v1/breakers/reset
func (h *OpsHandler) ResetAll(c *gin.Context) {
	h.breakers.ResetAll()
	c.JSON(http.StatusOK, gin.H{"breakers": h.breakers.Snapshots()})
}

// Routes lists the task routes in effect. Static is set when the config
// store could not be used.
// GET /v1/routes
func (h *OpsHandler) Routes(c *gin.Context) {
	routes, static := h.router.Routes(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"routes": routes, "static": static})
}

// GET /v1/routes/:task
func (h *OpsHandler) Route(c *gin.Context) {
	route, err := h.router.Resolve(c.Request.Context(), c.Param("task"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"route":      route,
		"candidates": routing.Candidates(route, func(p string) string { return h.registry.DefaultModel(ctx, p) }),
	})
}

// Providers lists the usable providers, lowest priority value first.
// GET /v1/providers
func (h *OpsHandler) Providers(c *gin.Context) {
	providers := h.registry.List(c.Request.Context())
	out := make([]api.ProviderInfo, 0, len(providers))
	for _, p := range providers {
		info := api.ProviderInfo{
			Name:         p.Name(),
			Kind:         string(p.Kind()),
			DefaultModel: p.DefaultModel(),
			Models:       p.Models(),
		}
		if d, ok := h.registry.Descriptor(p.Name()); ok {
			info.Priority = d.Priority
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// InvalidateCache drops the cached routing documents.
// POST /v1/cache/invalidate
func (h *OpsHandler) InvalidateCache(c *gin.Context) {
	if err := h.router.Invalidate(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

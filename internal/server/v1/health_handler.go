package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/pkg/api"
)

type HealthHandler struct {
	startTime time.Time
	version   string
	registry  *llm.Registry
}

func NewHealthHandler(version string, registry *llm.Registry) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		version:   version,
		registry:  registry,
	}
}

// Health returns the health status and uptime of the API. It reports
// "degraded" while no provider is usable.
func (h *HealthHandler) Health(c *gin.Context) {
	n := len(h.registry.List(c.Request.Context()))
	status := "healthy"
	if n == 0 {
		status = "degraded"
	}
	c.JSON(http.StatusOK, api.HealthResponse{
		Status:    status,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Providers: n,
		Time:      time.Now().UTC().Format(time.RFC3339),
	})
}

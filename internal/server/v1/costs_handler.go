package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/content-orchestrator/internal/cost"
	"github.com/nulzo/content-orchestrator/pkg/api"
)

type CostsHandler struct {
	tracker *cost.Tracker
}

func NewCostsHandler(tracker *cost.Tracker) *CostsHandler {
	return &CostsHandler{tracker: tracker}
}

// Summary aggregates the ledger for a period (day, week or month).
// GET /v1/costs/summary?period=day
func (h *CostsHandler) Summary(c *gin.Context) {
	period := cost.Period(c.DefaultQuery("period", string(cost.PeriodDay)))
	summary, err := h.tracker.Summary(c.Request.Context(), period)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Recent returns the newest ledger entries.
// GET /v1/costs/recent?limit=50
func (h *CostsHandler) Recent(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 1000 {
			_ = c.Error(api.ValidationError(map[string]string{"limit": "limit must be an integer between 0 and 1000"}))
			return
		}
		limit = n
	}

	entries, err := h.tracker.Recent(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Limits reports spend against the configured limits.
// GET /v1/costs/limits
func (h *CostsHandler) Limits(c *gin.Context) {
	status, err := h.tracker.CheckLimits(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Cleanup purges entries past the retention period.
// POST /v1/costs/cleanup
func (h *CostsHandler) Cleanup(c *gin.Context) {
	removed, err := h.tracker.Cleanup(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Reset empties the ledger.
// DELETE /v1/costs
func (h *CostsHandler) Reset(c *gin.Context) {
	if err := h.tracker.Reset(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

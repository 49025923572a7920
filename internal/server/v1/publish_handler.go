package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/dedup"
	"github.com/nulzo/content-orchestrator/internal/notify"
	"github.com/nulzo/content-orchestrator/internal/publish"
	"github.com/nulzo/content-orchestrator/internal/server/validator"
	"github.com/nulzo/content-orchestrator/pkg/api"
)

type PublishHandler struct {
	publisher *publish.Publisher
	dedup     *dedup.Store
	notifier  notify.Notifier
	cmsURL    string
	validator *validator.Validator
	logger    *zap.Logger
}

func NewPublishHandler(publisher *publish.Publisher, store *dedup.Store, notifier notify.Notifier, cmsURL string, v *validator.Validator, logger *zap.Logger) *PublishHandler {
	return &PublishHandler{
		publisher: publisher,
		dedup:     store,
		notifier:  notifier,
		cmsURL:    cmsURL,
		validator: v,
		logger:    logger,
	}
}

// Publish pushes content to the CMS, skipping unchanged items.
// POST /v1/publish
func (h *PublishHandler) Publish(c *gin.Context) {
	if h.publisher == nil {
		_ = c.Error(api.ServiceUnavailableError("Publishing is not configured."))
		return
	}

	var req api.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}

	items := make([]publish.Item, 0, len(req.Items))
	for _, it := range req.Items {
		var content any
		if err := json.Unmarshal(it.Content, &content); err != nil {
			_ = c.Error(api.BadRequestError("content of " + it.Type + "/" + it.Slug + " is not valid JSON"))
			return
		}
		items = append(items, publish.Item{Type: it.Type, Slug: it.Slug, Content: content})
	}

	report := h.publisher.PublishAll(c.Request.Context(), items)

	if req.Notify && h.notifier != nil {
		if err := h.notifier.Notify(context.WithoutCancel(c.Request.Context()), notify.SummarizePublish(report, h.cmsURL)); err != nil {
			h.logger.Warn("Failed to send publish summary", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, report)
}

// Decide previews what publishing one item would do.
// POST /v1/content/decide
func (h *PublishHandler) Decide(c *gin.Context) {
	var it api.PublishItem
	if err := c.ShouldBindJSON(&it); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}
	var content any
	if err := json.Unmarshal(it.Content, &content); err != nil {
		_ = c.Error(api.BadRequestError("content is not valid JSON"))
		return
	}

	d, err := h.dedup.Decide(c.Request.Context(), it.Type, it.Slug, content)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /v1/content/:type?limit=100
func (h *PublishHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		_ = c.Error(api.ValidationError(map[string]string{"limit": "limit must be a non-negative integer"}))
		return
	}
	records, err := h.dedup.ListByType(c.Request.Context(), c.Param("type"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// DELETE /v1/content/:type/:slug
func (h *PublishHandler) Delete(c *gin.Context) {
	if err := h.dedup.Delete(c.Request.Context(), c.Param("type"), c.Param("slug")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

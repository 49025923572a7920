package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/notify"
	"github.com/nulzo/content-orchestrator/internal/orchestrator"
	"github.com/nulzo/content-orchestrator/internal/server/validator"
	"github.com/nulzo/content-orchestrator/pkg/api"
)

type GenerationHandler struct {
	orch      *orchestrator.Orchestrator
	notifier  notify.Notifier
	interval  time.Duration
	validator *validator.Validator
	logger    *zap.Logger
}

func NewGenerationHandler(orch *orchestrator.Orchestrator, notifier notify.Notifier, interval time.Duration, v *validator.Validator, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		orch:      orch,
		notifier:  notifier,
		interval:  interval,
		validator: v,
		logger:    logger,
	}
}

// Dispatch runs one request through the candidate chain of its task.
// POST /v1/dispatch
func (h *GenerationHandler) Dispatch(c *gin.Context) {
	var req api.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}
	if errs := checkDispatch(&req); len(errs) > 0 {
		_ = c.Error(api.ValidationError(errs))
		return
	}

	out, err := h.orch.Dispatch(c.Request.Context(), toRequest(&req))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, toResponse(out))
}

// Stream relays a text completion as server-sent events.
// POST /v1/stream
func (h *GenerationHandler) Stream(c *gin.Context) {
	var req api.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}

	chunks, out, err := h.orch.Stream(c.Request.Context(), req.Task, req.Prompt, toOptions(req.Options))
	if err != nil {
		_ = c.Error(err)
		return
	}

	// set headers for sse
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.Header().Set("X-Provider", out.Candidate.Provider)
	c.Writer.Header().Set("X-Model", out.Candidate.Model)
	if out.FallbackUsed {
		c.Writer.Header().Set("X-Fallback-Used", "true")
	}

	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		chunk, ok := <-chunks
		if !ok {
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
			return false
		}

		ev := api.StreamEvent{
			Content:      chunk.Content,
			Done:         chunk.IsComplete,
			FinishReason: string(chunk.FinishReason),
		}
		if chunk.Usage != nil {
			u := toUsage(*chunk.Usage)
			ev.Usage = &u
		}
		if chunk.Err != nil {
			ev.Error = chunk.Err.Error()
		}

		data, err := json.Marshal(ev)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		// the relay closes the channel after an error chunk
		return true
	})
}

// Batch dispatches the items one after another and optionally sends a run
// summary to the notification sinks.
// POST /v1/batch
func (h *GenerationHandler) Batch(c *gin.Context) {
	var req api.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}

	items := make([]orchestrator.BatchItem, 0, len(req.Items))
	for i := range req.Items {
		it := &req.Items[i]
		if errs := checkDispatch(&it.Request); len(errs) > 0 {
			prefixed := make(map[string]string, len(errs))
			for k, v := range errs {
				prefixed[fmt.Sprintf("items[%d].request.%s", i, k)] = v
			}
			_ = c.Error(api.ValidationError(prefixed))
			return
		}
		items = append(items, orchestrator.BatchItem{ID: it.ID, Request: toRequest(&it.Request)})
	}

	interval := h.interval
	if req.IntervalMs > 0 {
		interval = time.Duration(req.IntervalMs) * time.Millisecond
	}

	report := h.orch.Batch(c.Request.Context(), items, interval)

	if req.Notify && h.notifier != nil {
		if err := h.notifier.Notify(context.WithoutCancel(c.Request.Context()), notify.Summarize(report)); err != nil {
			h.logger.Warn("Failed to send batch summary", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, toBatchResponse(report))
}

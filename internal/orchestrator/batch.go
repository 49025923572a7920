package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BatchItem is one request of a batch, identified for reporting.
type BatchItem struct {
	ID      string  `json:"id"`
	Request Request `json:"-"`
}

// BatchItemResult is the outcome of one item. Outcome is nil on failure.
type BatchItemResult struct {
	ID      string   `json:"id"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Err     error    `json:"-"`
	Error   string   `json:"error,omitempty"`
}

// BatchReport aggregates a batch run for the notification collaborator.
type BatchReport struct {
	Total      int               `json:"total"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	TotalCost  float64           `json:"total_cost"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Items      []BatchItemResult `json:"items"`
}

// Reasons returns the error text of every failed item in order.
func (r *BatchReport) Reasons() []string {
	var out []string
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it.ID+": "+it.Error)
		}
	}
	return out
}

// Batch dispatches items one at a time, at most one per interval. A failed
// item does not stop the batch; cancelling ctx does, and the remaining
// items are counted as skipped.
func (o *Orchestrator) Batch(ctx context.Context, items []BatchItem, interval time.Duration) *BatchReport {
	report := &BatchReport{Total: len(items), StartedAt: time.Now()}

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i, item := range items {
		if err := limiter.Wait(ctx); err != nil {
			report.Skipped = len(items) - i
			o.logger.Warn("Batch interrupted", zap.Int("remaining", report.Skipped), zap.Error(err))
			break
		}

		out, err := o.Dispatch(ctx, item.Request)
		res := BatchItemResult{ID: item.ID, Outcome: out}
		if err != nil {
			res.Err = err
			res.Error = err.Error()
			report.Failed++
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				report.Items = append(report.Items, res)
				report.Skipped = len(items) - i - 1
				break
			}
		} else {
			report.Succeeded++
			if out.Result != nil {
				report.TotalCost += out.Result.Cost
			}
		}
		report.Items = append(report.Items, res)
	}

	report.FinishedAt = time.Now()
	o.logger.Info("Batch finished",
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Float64("cost", report.TotalCost),
	)
	return report
}

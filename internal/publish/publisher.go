// Package publish pushes generated content to the CMS, skipping content
// that has already been published unchanged.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/dedup"
	"github.com/nulzo/content-orchestrator/internal/platform/metrics"
	"github.com/nulzo/content-orchestrator/internal/resilience"
)

// Item is one piece of content destined for collection Type.
type Item struct {
	Type    string `json:"type" binding:"required"`
	Slug    string `json:"slug" binding:"required"`
	Content any    `json:"content" binding:"required"`
}

// Result describes what happened to one item.
type Result struct {
	Type       string       `json:"type"`
	Slug       string       `json:"slug"`
	Action     dedup.Action `json:"action"`
	ExternalID string       `json:"external_id,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Attempts   int          `json:"attempts,omitempty"`
	Err        error        `json:"-"`
	Error      string       `json:"error,omitempty"`
}

// Report aggregates a PublishAll run.
type Report struct {
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
}

// Reasons returns "type/slug: error" for every failed item.
func (r *Report) Reasons() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Type+"/"+res.Slug+": "+res.Error)
		}
	}
	return out
}

type Option func(*Publisher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

type Publisher struct {
	client  Client
	dedup   *dedup.Store
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewPublisher(client Client, store *dedup.Store, breakers *resilience.Breakers, retry resilience.RetryConfig, logger *zap.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		client:  client,
		dedup:   store,
		breaker: breakers.Get(resilience.PublishDependency),
		retry:   retry,
		logger:  logger.Named("publish"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish creates or updates item in the CMS unless an identical version was
// already published. The dedup record is only written after the CMS accepted
// the content.
func (p *Publisher) Publish(ctx context.Context, item Item) (*Result, error) {
	decision, err := p.dedup.Decide(ctx, item.Type, item.Slug, item.Content)
	if err != nil {
		return nil, err
	}
	res := &Result{Type: item.Type, Slug: item.Slug, Action: decision.Action, Reason: decision.Reason, ExternalID: decision.ExternalID}

	if decision.Action == dedup.ActionSkip {
		p.logger.Info("Skipping unchanged content",
			zap.String("type", item.Type),
			zap.String("slug", item.Slug),
			zap.String("reason", decision.Reason),
		)
		p.metrics.Publish(item.Type, string(dedup.ActionSkip))
		return res, nil
	}

	var attempts int
	doc, err := resilience.ExecuteValue(ctx, p.breaker, func(ctx context.Context) (*Document, error) {
		r := resilience.Execute(ctx, p.retry, func(ctx context.Context) (*Document, error) {
			return p.push(ctx, item, decision)
		})
		attempts = r.Attempts
		return r.Value, r.Err
	})
	res.Attempts = attempts
	if err != nil {
		p.metrics.Publish(item.Type, "failed")
		return res, fmt.Errorf("failed to publish %s/%s: %w", item.Type, item.Slug, err)
	}
	res.ExternalID = doc.ID

	// the CMS has the content now, do not let a cancelled caller drop the record
	if _, err := p.dedup.Register(context.WithoutCancel(ctx), item.Type, item.Slug, item.Content, doc.ID); err != nil {
		p.logger.Error("Failed to register published content",
			zap.String("type", item.Type),
			zap.String("slug", item.Slug),
			zap.Error(err),
		)
	}

	p.metrics.Publish(item.Type, string(res.Action))
	p.logger.Info("Published content",
		zap.String("type", item.Type),
		zap.String("slug", item.Slug),
		zap.String("action", string(res.Action)),
		zap.String("id", doc.ID),
	)
	return res, nil
}

// push updates the known document, or looks the slug up in the CMS when the
// external id is unknown.
func (p *Publisher) push(ctx context.Context, item Item, decision dedup.Decision) (*Document, error) {
	id := decision.ExternalID
	if id == "" {
		existing, err := p.client.FindBySlug(ctx, item.Type, item.Slug)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			id = existing.ID
		}
	}
	if id != "" {
		return p.client.Update(ctx, item.Type, id, item.Content)
	}
	return p.client.Create(ctx, item.Type, item.Content)
}

// PublishAll publishes items in order. It stops early only when ctx ends.
func (p *Publisher) PublishAll(ctx context.Context, items []Item) *Report {
	report := &Report{StartedAt: time.Now()}
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		res, err := p.Publish(ctx, item)
		if res == nil {
			res = &Result{Type: item.Type, Slug: item.Slug}
		}
		if err != nil {
			res.Err = err
			res.Error = err.Error()
			report.Failed++
		} else {
			switch res.Action {
			case dedup.ActionCreate:
				report.Created++
			case dedup.ActionUpdate:
				report.Updated++
			case dedup.ActionSkip:
				report.Skipped++
			}
		}
		report.Results = append(report.Results, *res)
		if errors.Is(err, context.Canceled) {
			break
		}
	}
	report.FinishedAt = time.Now()
	return report
}

// Package orchestrator walks a task's candidate chain until a provider succeeds.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/cost"
	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/internal/platform/metrics"
	"github.com/nulzo/content-orchestrator/internal/resilience"
	"github.com/nulzo/content-orchestrator/internal/routing"
	"github.com/nulzo/content-orchestrator/internal/store/model"
)

// Providers looks provider instances up by name.
type Providers interface {
	Get(ctx context.Context, name string) (llm.Provider, bool)
	DefaultModel(ctx context.Context, name string) string
}

// Routes resolves a task type.
type Routes interface {
	Resolve(ctx context.Context, task string) (routing.TaskRoute, error)
}

// Ledger is the cost admission and recording contract.
type Ledger interface {
	CanAfford(ctx context.Context, estimate float64) (cost.Admission, error)
	Record(ctx context.Context, entry model.CostEntry) error
}

type Option func(*Orchestrator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// Orchestrator holds no per-dispatch state; every dependency is injected.
type Orchestrator struct {
	providers Providers
	routes    Routes
	ledger    Ledger
	breakers  *resilience.Breakers
	retry     resilience.RetryConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// New creates an orchestrator. retry supplies everything but MaxRetries,
// which comes from the route.
func New(providers Providers, routes Routes, ledger Ledger, breakers *resilience.Breakers, retry resilience.RetryConfig, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providers: providers,
		routes:    routes,
		ledger:    ledger,
		breakers:  breakers,
		retry:     retry,
		logger:    logger,
		tracer:    otel.Tracer("github.com/nulzo/content-orchestrator/internal/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Outcome is a successful dispatch together with the fallback history.
type Outcome struct {
	Result             *llm.Result        `json:"result"`
	Data               json.RawMessage    `json:"data,omitempty"`
	TaskType           string             `json:"task_type"`
	Candidate          routing.Candidate  `json:"candidate"`
	ProvidersAttempted []string           `json:"providers_attempted"`
	FallbackUsed       bool               `json:"fallback_used"`
	Failures           []CandidateFailure `json:"failures,omitempty"`
	Attempts           int                `json:"attempts"`
}

// operation adapts one capability to the dispatch loop.
type operation struct {
	supports func(p llm.Provider) bool
	estimate func(p llm.Provider, model string) float64
	invoke   func(ctx context.Context, p llm.Provider, model string) (*llm.Result, error)
}

// dispatch implements the fallback walk shared by every front door.
func (o *Orchestrator) dispatch(ctx context.Context, task string, op operation) (*Outcome, error) {
	started := time.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator.dispatch", trace.WithAttributes(attribute.String("task", task)))
	defer span.End()

	route, err := o.routes.Resolve(ctx, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "route resolution failed")
		return nil, err
	}

	candidates := routing.Candidates(route, func(p string) string { return o.providers.DefaultModel(ctx, p) })
	out := &Outcome{TaskType: task}

	for _, c := range candidates {
		out.ProvidersAttempted = append(out.ProvidersAttempted, c.String())

		res, failure := o.attempt(ctx, route, c, op)
		if failure != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				o.metrics.Dispatch(task, "cancelled", time.Since(started).Seconds())
				span.SetStatus(codes.Error, "cancelled")
				return nil, eris.Wrapf(ctxErr, "dispatch of task %s cancelled", task)
			}
			out.Failures = append(out.Failures, *failure)
			out.Attempts += failure.Attempts
			continue
		}

		out.Result = res.result
		out.Candidate = c
		out.Attempts += res.attempts
		out.FallbackUsed = len(out.ProvidersAttempted) > 1

		o.metrics.Dispatch(task, "success", time.Since(started).Seconds())
		span.SetAttributes(
			attribute.String("provider", c.Provider),
			attribute.String("model", c.Model),
			attribute.Bool("fallback_used", out.FallbackUsed),
		)
		o.logger.Info("Dispatch succeeded",
			zap.String("task", task),
			zap.String("provider", c.Provider),
			zap.String("model", res.result.Model),
			zap.Float64("cost", res.result.Cost),
			zap.Int64("latency_ms", res.result.LatencyMs),
			zap.Bool("fallback_used", out.FallbackUsed),
		)
		return out, nil
	}

	exhausted := &ChainExhausted{TaskType: task, Failures: out.Failures}
	o.metrics.Dispatch(task, "exhausted", time.Since(started).Seconds())
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, "chain exhausted")
	o.logger.Error("All candidates failed", zap.String("task", task), zap.Int("candidates", len(candidates)), zap.Error(exhausted))
	return nil, exhausted
}

type attemptResult struct {
	result   *llm.Result
	attempts int
}

// attempt runs the admission, breaker and retry pipeline for one candidate.
func (o *Orchestrator) attempt(ctx context.Context, route routing.TaskRoute, c routing.Candidate, op operation) (*attemptResult, *CandidateFailure) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.candidate", trace.WithAttributes(
		attribute.String("provider", c.Provider),
		attribute.String("model", c.Model),
	))
	defer span.End()

	fail := func(kind FailureKind, err error, attempts int) *CandidateFailure {
		o.metrics.Attempt(c.Provider, c.Model, string(kind))
		span.SetStatus(codes.Error, string(kind))
		o.logger.Warn("Candidate failed",
			zap.String("task", route.Task),
			zap.String("candidate", c.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return &CandidateFailure{Candidate: c, Kind: kind, Reason: err.Error(), Attempts: attempts, Err: err}
	}

	p, ok := o.providers.Get(ctx, c.Provider)
	if !ok {
		return nil, fail(FailureUnavailable, fmt.Errorf("provider %s not available", c.Provider), 0)
	}
	if !op.supports(p) {
		return nil, fail(FailureUnsupported, eris.Wrapf(llm.ErrUnsupported, "provider %s", c.Provider), 0)
	}

	estimate := op.estimate(p, c.Model)
	if err := o.admit(ctx, route, estimate); err != nil {
		o.metrics.BudgetRejected(c.Provider)
		return nil, fail(FailureBudget, err, 0)
	}

	breaker := o.breakers.Get(resilience.LLMDependency(c.Provider))
	cfg := o.retry.WithMaxRetries(route.MaxRetries)
	started := time.Now()

	var attempts int
	res, err := resilience.ExecuteValue(ctx, breaker, func(ctx context.Context) (*llm.Result, error) {
		r := resilience.Execute(ctx, cfg, func(ctx context.Context) (*llm.Result, error) {
			return o.invoke(ctx, route.Timeout, p, c.Model, op)
		})
		attempts = r.Attempts
		return r.Value, r.Err
	})
	o.metrics.BreakerState(breaker.Name(), int(breaker.State()))

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fail(FailureCircuitOpen, err, 0)
	}
	if err != nil {
		if ctx.Err() == nil {
			o.record(ctx, model.CostEntry{
				Provider:  c.Provider,
				Model:     c.Model,
				TaskType:  route.Task,
				LatencyMs: time.Since(started).Milliseconds(),
				Error:     err.Error(),
			})
		}
		span.RecordError(err)
		return nil, fail(FailureProvider, err, attempts)
	}

	o.metrics.Attempt(c.Provider, c.Model, "success")
	o.metrics.Spend(c.Provider, res.Model, res.Cost)
	o.record(ctx, model.CostEntry{
		Provider:     res.Provider,
		Model:        res.Model,
		TaskType:     route.Task,
		InputTokens:  res.Usage.PromptTokens,
		OutputTokens: res.Usage.CompletionTokens,
		Cost:         res.Cost,
		LatencyMs:    res.LatencyMs,
		Success:      true,
	})
	return &attemptResult{result: res, attempts: attempts}, nil
}

// invoke runs a single provider call under the per-attempt timeout. A
// timed-out attempt is reported with "timeout" in its text so that it is
// retried.
func (o *Orchestrator) invoke(ctx context.Context, timeout time.Duration, p llm.Provider, modelID string, op operation) (*llm.Result, error) {
	if timeout <= 0 {
		timeout = routing.DefaultTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := op.invoke(actx, p, modelID)
	if err != nil {
		if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return nil, eris.Wrapf(err, "attempt timeout after %s", timeout)
		}
		return nil, err
	}
	if res == nil {
		return nil, llm.NoContent(p.Name())
	}
	return res, nil
}

func (o *Orchestrator) admit(ctx context.Context, route routing.TaskRoute, estimate float64) error {
	if route.MaxCostPerRequest > 0 && estimate > route.MaxCostPerRequest {
		return eris.Wrapf(cost.ErrBudgetExceeded, "estimated cost $%.4f exceeds route limit $%.2f", estimate, route.MaxCostPerRequest)
	}
	adm, err := o.ledger.CanAfford(ctx, estimate)
	if err != nil {
		return eris.Wrap(cost.ErrBudgetExceeded, "ledger unavailable: "+err.Error())
	}
	return adm.Err()
}

// record persists a ledger entry. The entry outlives a cancelled request.
func (o *Orchestrator) record(ctx context.Context, entry model.CostEntry) {
	if err := o.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		o.logger.Error("Failed to record cost entry",
			zap.String("provider", entry.Provider),
			zap.String("model", entry.Model),
			zap.Error(err),
		)
	}
}

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/internal/resilience"
	"github.com/nulzo/content-orchestrator/internal/routing"
	"github.com/nulzo/content-orchestrator/internal/store/model"
)

// Stream walks the chain until a provider opens a stream. Opening is
// retried and guarded by the breaker like any other call; once chunks flow
// the stream is never restarted on another candidate. Cost is recorded
// when the stream ends. The returned outcome has no Result.
func (o *Orchestrator) Stream(ctx context.Context, task, prompt string, opts llm.Options) (<-chan llm.StreamChunk, *Outcome, error) {
	route, err := o.routes.Resolve(ctx, task)
	if err != nil {
		return nil, nil, err
	}

	messages, _ := llm.TextRequest(prompt, opts)
	input := llm.EstimateMessagesTokens(messages)
	out := &Outcome{TaskType: task}

	candidates := routing.Candidates(route, func(p string) string { return o.providers.DefaultModel(ctx, p) })
	for _, c := range candidates {
		out.ProvidersAttempted = append(out.ProvidersAttempted, c.String())

		ch, attempts, failure := o.openStream(ctx, route, c, prompt, opts, input)
		if failure != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, eris.Wrapf(ctxErr, "stream for task %s cancelled", task)
			}
			out.Failures = append(out.Failures, *failure)
			out.Attempts += failure.Attempts
			continue
		}
		out.Candidate = c
		out.Attempts += attempts
		out.FallbackUsed = len(out.ProvidersAttempted) > 1
		return ch, out, nil
	}

	return nil, nil, &ChainExhausted{TaskType: task, Failures: out.Failures}
}

func (o *Orchestrator) openStream(ctx context.Context, route routing.TaskRoute, c routing.Candidate, prompt string, opts llm.Options, input int) (<-chan llm.StreamChunk, int, *CandidateFailure) {
	fail := func(kind FailureKind, err error, attempts int) *CandidateFailure {
		o.metrics.Attempt(c.Provider, c.Model, string(kind))
		o.logger.Warn("Stream candidate failed",
			zap.String("task", route.Task),
			zap.String("candidate", c.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return &CandidateFailure{Candidate: c, Kind: kind, Reason: err.Error(), Attempts: attempts, Err: err}
	}

	p, ok := o.providers.Get(ctx, c.Provider)
	if !ok {
		return nil, 0, fail(FailureUnavailable, fmt.Errorf("provider %s not available", c.Provider), 0)
	}
	cp, ok := p.(llm.ChatProvider)
	if !ok {
		return nil, 0, fail(FailureUnsupported, eris.Wrapf(llm.ErrUnsupported, "provider %s", c.Provider), 0)
	}

	estimate := p.EstimateCost(c.Model, llm.Quantity{InputTokens: input, OutputTokens: opts.MaxTokensOr(defaultOutputTokens)})
	if err := o.admit(ctx, route, estimate); err != nil {
		o.metrics.BudgetRejected(c.Provider)
		return nil, 0, fail(FailureBudget, err, 0)
	}

	breaker := o.breakers.Get(resilience.LLMDependency(c.Provider))
	if err := breaker.Allow(); err != nil {
		return nil, 0, fail(FailureCircuitOpen, err, 0)
	}

	callOpts := opts
	callOpts.Model = c.Model
	started := time.Now()
	r := resilience.Execute(ctx, o.retry.WithMaxRetries(route.MaxRetries), func(ctx context.Context) (<-chan llm.StreamChunk, error) {
		return cp.GenerateStream(ctx, prompt, callOpts)
	})
	if r.Err != nil {
		breaker.Settle(ctx, r.Err)
		if ctx.Err() == nil {
			o.record(ctx, model.CostEntry{
				Provider:  c.Provider,
				Model:     c.Model,
				TaskType:  route.Task,
				LatencyMs: time.Since(started).Milliseconds(),
				Error:     r.Err.Error(),
			})
		}
		return nil, r.Attempts, fail(FailureProvider, r.Err, r.Attempts)
	}

	return o.relay(ctx, r.Value, p, c, route.Task, input, breaker, started), r.Attempts, nil
}

// relay forwards chunks and settles breaker and ledger once the upstream
// channel closes.
func (o *Orchestrator) relay(ctx context.Context, in <-chan llm.StreamChunk, p llm.Provider, c routing.Candidate, task string, input int, breaker *resilience.Breaker, started time.Time) <-chan llm.StreamChunk {
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)

		var content strings.Builder
		var usage *llm.Usage
		var streamErr error
		delivering := true
		for chunk := range in {
			content.WriteString(chunk.Content)
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			if chunk.Err != nil {
				streamErr = chunk.Err
			}
			if !delivering {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				delivering = false
			}
		}

		if ctx.Err() != nil {
			breaker.Release()
			return
		}
		if streamErr != nil {
			breaker.Record(streamErr)
			o.metrics.Attempt(c.Provider, c.Model, string(FailureProvider))
			o.record(ctx, model.CostEntry{
				Provider:  c.Provider,
				Model:     c.Model,
				TaskType:  task,
				LatencyMs: time.Since(started).Milliseconds(),
				Error:     streamErr.Error(),
			})
			return
		}

		breaker.Record(nil)
		u := llm.Usage{PromptTokens: input, CompletionTokens: llm.EstimateTokens(content.String())}
		if usage != nil && (usage.PromptTokens > 0 || usage.CompletionTokens > 0) {
			u = *usage
		}
		spent := p.EstimateCost(c.Model, llm.Quantity{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens})
		o.metrics.Attempt(c.Provider, c.Model, "success")
		o.metrics.Spend(c.Provider, c.Model, spent)
		o.record(ctx, model.CostEntry{
			Provider:     c.Provider,
			Model:        c.Model,
			TaskType:     task,
			InputTokens:  u.PromptTokens,
			OutputTokens: u.CompletionTokens,
			Cost:         spent,
			LatencyMs:    time.Since(started).Milliseconds(),
			Success:      true,
		})
	}()
	return out
}


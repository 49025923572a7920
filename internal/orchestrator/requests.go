package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nulzo/content-orchestrator/internal/llm"
)

// RequestKind selects the provider capability a request needs.
type RequestKind string

const (
	KindChat  RequestKind = "chat"
	KindText  RequestKind = "text"
	KindJSON  RequestKind = "json"
	KindImage RequestKind = "image"
	KindEmbed RequestKind = "embed"
)

// defaultOutputTokens is the completion size assumed for cost estimates
// when the request sets no limit.
const defaultOutputTokens = 1000

// Request is one unit of generation work. The model is chosen per
// candidate by the route; Options.Model is ignored.
type Request struct {
	Task     string
	Kind     RequestKind
	Messages []llm.Message
	Prompt   string
	Texts    []string
	Options  llm.Options
	Image    llm.ImageOptions
}

// Dispatch routes req through the candidate chain of its task. For KindJSON
// a *llm.ParseError is returned together with the outcome of the successful
// call; it is never retried.
func (o *Orchestrator) Dispatch(ctx context.Context, req Request) (*Outcome, error) {
	switch req.Kind {
	case KindChat, "":
		return o.dispatch(ctx, req.Task, chatOperation(req.Messages, req.Options))
	case KindText:
		messages, opts := llm.TextRequest(req.Prompt, req.Options)
		return o.dispatch(ctx, req.Task, chatOperation(messages, opts))
	case KindJSON:
		messages, opts := llm.JSONRequest(req.Prompt, req.Options)
		out, err := o.dispatch(ctx, req.Task, chatOperation(messages, opts))
		if err != nil {
			return nil, err
		}
		data, err := llm.ParseJSON(out.Result.Content)
		if err != nil {
			return out, err
		}
		out.Data = data
		return out, nil
	case KindImage:
		return o.dispatch(ctx, req.Task, imageOperation(req.Prompt, req.Image))
	case KindEmbed:
		return o.dispatch(ctx, req.Task, embedOperation(req.Texts, req.Options))
	default:
		return nil, fmt.Errorf("unknown request kind %q", req.Kind)
	}
}

func (o *Orchestrator) Chat(ctx context.Context, task string, messages []llm.Message, opts llm.Options) (*Outcome, error) {
	return o.Dispatch(ctx, Request{Task: task, Kind: KindChat, Messages: messages, Options: opts})
}

func (o *Orchestrator) Text(ctx context.Context, task, prompt string, opts llm.Options) (*Outcome, error) {
	return o.Dispatch(ctx, Request{Task: task, Kind: KindText, Prompt: prompt, Options: opts})
}

// JSON asks for a JSON document and returns the extracted data. Callers
// must validate its shape.
func (o *Orchestrator) JSON(ctx context.Context, task, prompt string, opts llm.Options) (json.RawMessage, *Outcome, error) {
	out, err := o.Dispatch(ctx, Request{Task: task, Kind: KindJSON, Prompt: prompt, Options: opts})
	if err != nil {
		return nil, out, err
	}
	return out.Data, out, nil
}

func (o *Orchestrator) Image(ctx context.Context, task, prompt string, opts llm.ImageOptions) (*Outcome, error) {
	return o.Dispatch(ctx, Request{Task: task, Kind: KindImage, Prompt: prompt, Image: opts})
}

func (o *Orchestrator) Embed(ctx context.Context, task string, texts []string, opts llm.Options) (*Outcome, error) {
	return o.Dispatch(ctx, Request{Task: task, Kind: KindEmbed, Texts: texts, Options: opts})
}

func chatOperation(messages []llm.Message, opts llm.Options) operation {
	input := llm.EstimateMessagesTokens(messages) + llm.EstimateTokens(opts.SystemPrompt)
	return operation{
		supports: func(p llm.Provider) bool {
			_, ok := p.(llm.ChatProvider)
			return ok
		},
		estimate: func(p llm.Provider, model string) float64 {
			return p.EstimateCost(model, llm.Quantity{InputTokens: input, OutputTokens: opts.MaxTokensOr(defaultOutputTokens)})
		},
		invoke: func(ctx context.Context, p llm.Provider, model string) (*llm.Result, error) {
			callOpts := opts
			callOpts.Model = model
			return p.(llm.ChatProvider).GenerateChat(ctx, messages, callOpts)
		},
	}
}

func imageOperation(prompt string, opts llm.ImageOptions) operation {
	return operation{
		supports: func(p llm.Provider) bool {
			_, ok := p.(llm.ImageProvider)
			return ok
		},
		estimate: func(p llm.Provider, model string) float64 {
			return p.EstimateCost(model, llm.Quantity{Images: opts.Images()})
		},
		invoke: func(ctx context.Context, p llm.Provider, model string) (*llm.Result, error) {
			callOpts := opts
			callOpts.Model = model
			return p.(llm.ImageProvider).GenerateImage(ctx, prompt, callOpts)
		},
	}
}

func embedOperation(texts []string, opts llm.Options) operation {
	var input int
	for _, t := range texts {
		input += llm.EstimateTokens(t)
	}
	return operation{
		supports: func(p llm.Provider) bool {
			_, ok := p.(llm.EmbeddingProvider)
			return ok
		},
		estimate: func(p llm.Provider, model string) float64 {
			return p.EstimateCost(model, llm.Quantity{InputTokens: input})
		},
		invoke: func(ctx context.Context, p llm.Provider, model string) (*llm.Result, error) {
			callOpts := opts
			callOpts.Model = model
			return p.(llm.EmbeddingProvider).Embed(ctx, texts, callOpts)
		},
	}
}

package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/nulzo/content-orchestrator/internal/llm"
)

func init() {
	llm.Register("openai", NewAdapter)
	llm.Register("openai-dalle", NewImageAdapter)
}

func newClient(d llm.Descriptor) sdk.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(d.APIKey),
		option.WithMaxRetries(0),
	}
	if d.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(d.BaseURL, "/")+"/"))
	}
	return sdk.NewClient(opts...)
}

// Adapter serves chat and embeddings from the OpenAI API.
type Adapter struct {
	llm.Base
	client sdk.Client
}

func NewAdapter(d llm.Descriptor) (llm.Provider, error) {
	if d.Kind == "" {
		d.Kind = llm.KindLLM
	}
	return &Adapter{Base: llm.Base{Desc: d}, client: newClient(d)}, nil
}

func (a *Adapter) params(messages []llm.Message, opts llm.Options) (sdk.ChatCompletionNewParams, string) {
	model := a.ModelOr(opts.Model)
	system, turns := llm.SplitSystem(messages, opts.SystemPrompt)

	p := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: make([]sdk.ChatCompletionMessageParamUnion, 0, len(turns)+1),
	}
	if system != "" {
		p.Messages = append(p.Messages, sdk.SystemMessage(system))
	}
	for _, m := range turns {
		if m.Role == llm.RoleAssistant {
			p.Messages = append(p.Messages, sdk.AssistantMessage(m.Content))
		} else {
			p.Messages = append(p.Messages, sdk.UserMessage(m.Content))
		}
	}

	if limit := opts.MaxTokensOr(a.Desc.MaxTokens); limit > 0 {
		p.MaxCompletionTokens = sdk.Int(int64(limit))
	}
	if opts.Temperature != nil {
		p.Temperature = sdk.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		p.TopP = sdk.Float(*opts.TopP)
	}
	if len(opts.StopSequences) > 0 {
		p.Stop = sdk.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopSequences}
	}
	if opts.ResponseFormat == llm.FormatJSON {
		p.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return p, model
}

func (a *Adapter) GenerateChat(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Result, error) {
	started := time.Now()
	params, model := a.params(messages, opts)

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.wrap(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, llm.NoContent(a.Name())
	}

	return a.Finish(&llm.Result{
		ID:      resp.ID,
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		FinishReason: llm.NormalizeFinishReason(resp.Choices[0].FinishReason),
	}, model, started), nil
}

func (a *Adapter) GenerateStream(ctx context.Context, prompt string, opts llm.Options) (<-chan llm.StreamChunk, error) {
	params, _ := a.params(llm.BuildMessages("", prompt), opts)
	params.StreamOptions = sdk.ChatCompletionStreamOptionsParam{IncludeUsage: sdk.Bool(true)}
	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	ch := make(chan llm.StreamChunk)

	go func() {
		defer close(ch)
		defer stream.Close()

		var usage *llm.Usage
		finish := llm.FinishStop
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				usage = &llm.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if reason := chunk.Choices[0].FinishReason; reason != "" {
				finish = llm.NormalizeFinishReason(reason)
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				if !send(ctx, ch, llm.StreamChunk{Content: text}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			send(ctx, ch, llm.StreamChunk{Err: a.wrap(err), FinishReason: llm.FinishError})
			return
		}
		send(ctx, ch, llm.StreamChunk{IsComplete: true, FinishReason: finish, Usage: usage})
	}()
	return ch, nil
}

// Embed returns one vector per input text, in input order.
func (a *Adapter) Embed(ctx context.Context, texts []string, opts llm.Options) (*llm.Result, error) {
	started := time.Now()
	model := a.ModelOr(opts.Model)

	resp, err := a.client.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Model: sdk.EmbeddingModel(model),
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, a.wrap(err)
	}
	if len(resp.Data) == 0 {
		return nil, llm.NoContent(a.Name())
	}

	vectors := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if int(d.Index) < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return a.Finish(&llm.Result{
		Embeddings: vectors,
		Usage:      llm.Usage{PromptTokens: int(resp.Usage.PromptTokens), TotalTokens: int(resp.Usage.TotalTokens)},
	}, model, started), nil
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	_, err := a.client.Models.List(ctx)
	return err == nil
}

func (a *Adapter) wrap(err error) error {
	return wrap(a.Name(), err)
}

func wrap(provider string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &llm.ProviderError{Provider: provider, StatusCode: apiErr.StatusCode, Err: err}
	}
	return llm.NewProviderError(provider, err)
}

func send(ctx context.Context, ch chan<- llm.StreamChunk, c llm.StreamChunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

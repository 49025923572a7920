package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/nulzo/content-orchestrator/internal/llm"
)

const defaultMaxTokens = 4096

func init() {
	llm.Register("anthropic", NewAdapter)
}

// Adapter talks to the Anthropic Messages API through the official SDK.
type Adapter struct {
	llm.Base
	client sdk.Client
}

func NewAdapter(d llm.Descriptor) (llm.Provider, error) {
	if d.Kind == "" {
		d.Kind = llm.KindLLM
	}
	opts := []option.RequestOption{
		option.WithAPIKey(d.APIKey),
		// retries are owned by the orchestrator
		option.WithMaxRetries(0),
	}
	if d.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(d.BaseURL))
	}
	return &Adapter{
		Base:   llm.Base{Desc: d},
		client: sdk.NewClient(opts...),
	}, nil
}

func (a *Adapter) params(messages []llm.Message, opts llm.Options) (sdk.MessageNewParams, string) {
	model := a.ModelOr(opts.Model)
	system, turns := llm.SplitSystem(messages, opts.SystemPrompt)

	p := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(opts.MaxTokensOr(a.maxTokens())),
		Messages:  make([]sdk.MessageParam, 0, len(turns)),
	}
	for _, m := range turns {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == llm.RoleAssistant {
			p.Messages = append(p.Messages, sdk.NewAssistantMessage(block))
		} else {
			p.Messages = append(p.Messages, sdk.NewUserMessage(block))
		}
	}
	if system != "" {
		p.System = []sdk.TextBlockParam{{Text: system}}
	}
	if opts.Temperature != nil {
		p.Temperature = sdk.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		p.TopP = sdk.Float(*opts.TopP)
	}
	if len(opts.StopSequences) > 0 {
		p.StopSequences = opts.StopSequences
	}
	return p, model
}

func (a *Adapter) maxTokens() int {
	if a.Desc.MaxTokens > 0 {
		return a.Desc.MaxTokens
	}
	return defaultMaxTokens
}

func (a *Adapter) GenerateChat(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Result, error) {
	started := time.Now()
	params, model := a.params(messages, opts)

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.wrap(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, llm.NoContent(a.Name())
	}

	return a.Finish(&llm.Result{
		ID:      msg.ID,
		Content: text.String(),
		Usage: llm.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
		FinishReason: llm.NormalizeFinishReason(string(msg.StopReason)),
	}, model, started), nil
}

func (a *Adapter) GenerateStream(ctx context.Context, prompt string, opts llm.Options) (<-chan llm.StreamChunk, error) {
	params, _ := a.params(llm.BuildMessages("", prompt), opts)
	stream := a.client.Messages.NewStreaming(ctx, params)
	ch := make(chan llm.StreamChunk)

	go func() {
		defer close(ch)
		defer stream.Close()

		usage := llm.Usage{}
		finish := llm.FinishStop
		for stream.Next() {
			switch ev := stream.Current().AsAny().(type) {
			case sdk.MessageStartEvent:
				usage.PromptTokens = int(ev.Message.Usage.InputTokens)
			case sdk.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
					if !send(ctx, ch, llm.StreamChunk{Content: delta.Text}) {
						return
					}
				}
			case sdk.MessageDeltaEvent:
				usage.CompletionTokens = int(ev.Usage.OutputTokens)
				if ev.Delta.StopReason != "" {
					finish = llm.NormalizeFinishReason(string(ev.Delta.StopReason))
				}
			}
		}
		if err := stream.Err(); err != nil {
			send(ctx, ch, llm.StreamChunk{Err: a.wrap(err), FinishReason: llm.FinishError})
			return
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		send(ctx, ch, llm.StreamChunk{IsComplete: true, FinishReason: finish, Usage: &usage})
	}()
	return ch, nil
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	_, err := a.client.Models.List(ctx, sdk.ModelListParams{})
	return err == nil
}

func (a *Adapter) wrap(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &llm.ProviderError{Provider: a.Name(), StatusCode: apiErr.StatusCode, Err: err}
	}
	return a.Err(err)
}

func send(ctx context.Context, ch chan<- llm.StreamChunk, c llm.StreamChunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nulzo/content-orchestrator/internal/llm"
	"google.golang.org/genai"
)

const pn string = "google"

func init() {
	llm.Register(pn, NewAdapter)
}

// Adapter serves Gemini chat and embeddings through the genai SDK.
type Adapter struct {
	llm.Base
	client *genai.Client
}

func NewAdapter(d llm.Descriptor) (llm.Provider, error) {
	if d.Kind == "" {
		d.Kind = llm.KindLLM
	}
	cfg := &genai.ClientConfig{
		APIKey:  d.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if d.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: d.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	return &Adapter{Base: llm.Base{Desc: d}, client: client}, nil
}

// Shape converts a conversation into Gemini contents and generation config.
func Shape(messages []llm.Message, opts llm.Options, defaultMaxTokens int) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, turns := llm.SplitSystem(messages, opts.SystemPrompt)

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if limit := opts.MaxTokensOr(defaultMaxTokens); limit > 0 {
		cfg.MaxOutputTokens = int32(limit)
	}
	if opts.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*opts.Temperature))
	}
	if opts.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*opts.TopP))
	}
	if len(opts.StopSequences) > 0 {
		cfg.StopSequences = opts.StopSequences
	}
	if opts.ResponseFormat == llm.FormatJSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return contents, cfg
}

func (a *Adapter) GenerateChat(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Result, error) {
	started := time.Now()
	model := a.ModelOr(opts.Model)
	contents, cfg := Shape(messages, opts, a.Desc.MaxTokens)

	resp, err := a.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, a.wrap(err)
	}
	text, finish := candidateText(resp)
	if text == "" {
		return nil, llm.NoContent(a.Name())
	}

	res := &llm.Result{
		ID:           resp.ResponseID,
		Content:      text,
		FinishReason: finish,
	}
	if u := resp.UsageMetadata; u != nil {
		res.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return a.Finish(res, model, started), nil
}

func (a *Adapter) GenerateStream(ctx context.Context, prompt string, opts llm.Options) (<-chan llm.StreamChunk, error) {
	model := a.ModelOr(opts.Model)
	contents, cfg := Shape(llm.BuildMessages("", prompt), opts, a.Desc.MaxTokens)
	ch := make(chan llm.StreamChunk)

	go func() {
		defer close(ch)

		var usage *llm.Usage
		finish := llm.FinishStop
		for resp, err := range a.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				send(ctx, ch, llm.StreamChunk{Err: a.wrap(err), FinishReason: llm.FinishError})
				return
			}
			text, reason := candidateText(resp)
			if reason != "" {
				finish = reason
			}
			if u := resp.UsageMetadata; u != nil {
				usage = &llm.Usage{
					PromptTokens:     int(u.PromptTokenCount),
					CompletionTokens: int(u.CandidatesTokenCount),
					TotalTokens:      int(u.TotalTokenCount),
				}
			}
			if text != "" && !send(ctx, ch, llm.StreamChunk{Content: text}) {
				return
			}
		}
		send(ctx, ch, llm.StreamChunk{IsComplete: true, FinishReason: finish, Usage: usage})
	}()
	return ch, nil
}

func (a *Adapter) Embed(ctx context.Context, texts []string, opts llm.Options) (*llm.Result, error) {
	started := time.Now()
	model := a.ModelOr(opts.Model)

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := a.client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, a.wrap(err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, llm.NoContent(a.Name())
	}

	vectors := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = make([]float64, len(e.Values))
		for j, v := range e.Values {
			vectors[i][j] = float64(v)
		}
	}
	return a.Finish(&llm.Result{
		Embeddings: vectors,
		Usage:      llm.Usage{PromptTokens: llm.EstimateTokens(strings.Join(texts, " "))},
	}, model, started), nil
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	_, err := a.client.Models.List(ctx, nil)
	return err == nil
}

func (a *Adapter) wrap(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.ProviderError{Provider: a.Name(), StatusCode: apiErr.Code, Message: apiErr.Status, Err: err}
	}
	return a.Err(err)
}

func candidateText(resp *genai.GenerateContentResponse) (string, llm.FinishReason) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ""
	}
	c := resp.Candidates[0]
	var finish llm.FinishReason
	if c.FinishReason != "" {
		finish = llm.NormalizeFinishReason(string(c.FinishReason))
	}
	if c.Content == nil {
		return "", finish
	}
	var b strings.Builder
	for _, part := range c.Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String(), finish
}

func send(ctx context.Context, ch chan<- llm.StreamChunk, c llm.StreamChunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

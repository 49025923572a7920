// Package compat serves vendors exposing the OpenAI-compatible HTTP surface
// (chat completions, SSE streaming, embeddings) without a dedicated SDK.
package compat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nulzo/content-orchestrator/internal/httpclient"
	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/internal/llm/reasoning"
)

// vendor holds what differs between OpenAI-compatible vendors.
type vendor struct {
	baseURL string
	kind    llm.Kind
	headers map[string]string
}

var vendors = map[string]vendor{
	"deepseek":   {baseURL: "https://api.deepseek.com/v1", kind: llm.KindLLM},
	"groq":       {baseURL: "https://api.groq.com/openai/v1", kind: llm.KindLLM},
	"openrouter": {baseURL: "https://openrouter.ai/api/v1", kind: llm.KindLLM, headers: map[string]string{"X-Title": "content-orchestrator"}},
	"voyage":     {baseURL: "https://api.voyageai.com/v1", kind: llm.KindEmbedding},
}

func init() {
	for name, v := range vendors {
		v := v
		llm.Register(name, func(d llm.Descriptor) (llm.Provider, error) {
			return newAdapter(d, v), nil
		})
	}
	llm.Register("ollama", NewOllama)
}

// Adapter is a chat and embedding client for one OpenAI-compatible vendor.
type Adapter struct {
	llm.Base
	baseURL string
	headers map[string]string
	client  *http.Client
}

func newAdapter(d llm.Descriptor, v vendor) *Adapter {
	if d.Kind == "" {
		d.Kind = v.kind
	}
	base := d.BaseURL
	if base == "" {
		base = v.baseURL
	}
	headers := map[string]string{}
	for k, val := range v.headers {
		headers[k] = val
	}
	if d.APIKey != "" {
		headers["Authorization"] = "Bearer " + d.APIKey
	}
	return &Adapter{
		Base:    llm.Base{Desc: d},
		baseURL: strings.TrimRight(base, "/"),
		headers: headers,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	Stop           []string        `json:"stop,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		Delta        chatMessage `json:"delta"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

func (a *Adapter) request(messages []llm.Message, opts llm.Options) (chatRequest, string) {
	model := a.ModelOr(opts.Model)
	system, turns := llm.SplitSystem(messages, opts.SystemPrompt)

	req := chatRequest{
		Model:       model,
		MaxTokens:   opts.MaxTokensOr(a.Desc.MaxTokens),
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stop:        opts.StopSequences,
	}
	if system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: string(llm.RoleSystem), Content: system})
	}
	for _, m := range turns {
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if opts.ResponseFormat == llm.FormatJSON {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return req, model
}

func (a *Adapter) GenerateChat(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Result, error) {
	started := time.Now()
	req, model := a.request(messages, opts)

	var resp chatResponse
	if err := httpclient.SendRequest(ctx, a.client, http.MethodPost, a.baseURL+"/chat/completions", a.headers, req, &resp); err != nil {
		return nil, a.Err(err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NoContent(a.Name())
	}
	content := reasoning.Strip(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, llm.NoContent(a.Name())
	}

	res := &llm.Result{
		ID:           resp.ID,
		Content:      content,
		FinishReason: llm.NormalizeFinishReason(resp.Choices[0].FinishReason),
	}
	if resp.Usage != nil {
		res.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return a.Finish(res, model, started), nil
}

func (a *Adapter) GenerateStream(ctx context.Context, prompt string, opts llm.Options) (<-chan llm.StreamChunk, error) {
	req, _ := a.request(llm.BuildMessages("", prompt), opts)
	req.Stream = true
	req.StreamOptions = &streamOptions{IncludeUsage: true}
	ch := make(chan llm.StreamChunk)

	go func() {
		defer close(ch)

		var filter reasoning.StreamFilter
		var final *llm.Usage
		finish := llm.FinishStop

		err := httpclient.StreamRequest(ctx, a.client, http.MethodPost, a.baseURL+"/chat/completions", a.headers, req, func(line string) error {
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				return nil
			}
			if data == "[DONE]" {
				return httpclient.ErrStopStream
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return fmt.Errorf("malformed stream chunk: %w", err)
			}
			if chunk.Usage != nil {
				final = &llm.Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				return nil
			}
			if reason := chunk.Choices[0].FinishReason; reason != "" {
				finish = llm.NormalizeFinishReason(reason)
			}
			if text := filter.Write(chunk.Choices[0].Delta.Content); text != "" {
				if !send(ctx, ch, llm.StreamChunk{Content: text}) {
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil {
			send(ctx, ch, llm.StreamChunk{Err: a.Err(err), FinishReason: llm.FinishError})
			return
		}
		if rest := filter.Flush(); rest != "" && !send(ctx, ch, llm.StreamChunk{Content: rest}) {
			return
		}
		send(ctx, ch, llm.StreamChunk{IsComplete: true, FinishReason: finish, Usage: final})
	}()
	return ch, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage *usage `json:"usage"`
}

func (a *Adapter) Embed(ctx context.Context, texts []string, opts llm.Options) (*llm.Result, error) {
	started := time.Now()
	model := a.ModelOr(opts.Model)

	var resp embeddingResponse
	req := embeddingRequest{Model: model, Input: texts}
	if err := httpclient.SendRequest(ctx, a.client, http.MethodPost, a.baseURL+"/embeddings", a.headers, req, &resp); err != nil {
		return nil, a.Err(err)
	}
	if len(resp.Data) == 0 {
		return nil, llm.NoContent(a.Name())
	}

	vectors := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	res := &llm.Result{Embeddings: vectors}
	if resp.Usage != nil {
		res.Usage = llm.Usage{PromptTokens: resp.Usage.PromptTokens, TotalTokens: resp.Usage.TotalTokens}
	}
	return a.Finish(res, model, started), nil
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	var out json.RawMessage
	return httpclient.SendRequest(ctx, a.client, http.MethodGet, a.baseURL+"/models", a.headers, nil, &out) == nil
}

func send(ctx context.Context, ch chan<- llm.StreamChunk, c llm.StreamChunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

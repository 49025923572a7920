package llm

import (
	"strings"
	"time"
)

// Kind is the capability family of a provider.
type Kind string

const (
	KindLLM       Kind = "llm"
	KindImage     Kind = "image"
	KindEmbedding Kind = "embedding"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    Role   `json:"role" binding:"required,oneof=system user assistant"`
	Content string `json:"content" binding:"required"`
}

// ResponseFormat asks the model for plain text or a JSON document.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// Options tune a single text generation call. Zero values mean "provider default".
type Options struct {
	Model          string         `json:"model,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty" binding:"omitempty,gte=1,lte=200000"`
	Temperature    *float64       `json:"temperature,omitempty" binding:"omitempty,gte=0,lte=2"`
	TopP           *float64       `json:"top_p,omitempty" binding:"omitempty,gte=0,lte=1"`
	StopSequences  []string       `json:"stop_sequences,omitempty"`
	SystemPrompt   string         `json:"system_prompt,omitempty"`
	ResponseFormat ResponseFormat `json:"response_format,omitempty" binding:"omitempty,oneof=text json"`
	Timeout        time.Duration  `json:"-"`
}

// MaxTokensOr returns the requested max tokens or def.
func (o Options) MaxTokensOr(def int) int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return def
}

// ImageOptions tune a single image generation call.
type ImageOptions struct {
	Model          string `json:"model,omitempty"`
	Width          int    `json:"width,omitempty" binding:"omitempty,gte=64,lte=4096"`
	Height         int    `json:"height,omitempty" binding:"omitempty,gte=64,lte=4096"`
	Quality        string `json:"quality,omitempty" binding:"omitempty,oneof=standard hd"`
	Style          string `json:"style,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Count          int    `json:"count,omitempty" binding:"omitempty,gte=1,lte=4"`
}

// Size returns width and height, defaulting to a 1024 square.
func (o ImageOptions) Size() (int, int) {
	w, h := o.Width, o.Height
	if w == 0 {
		w = 1024
	}
	if h == 0 {
		h = 1024
	}
	return w, h
}

// Images returns the number of requested images, at least one.
func (o ImageOptions) Images() int {
	if o.Count < 1 {
		return 1
	}
	return o.Count
}

type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolUse       FinishReason = "tool_use"
	FinishError         FinishReason = "error"
)

// NormalizeFinishReason maps vendor stop reasons onto the common set.
func NormalizeFinishReason(raw string) FinishReason {
	switch strings.ToLower(raw) {
	case "length", "max_tokens":
		return FinishLength
	case "content_filter", "safety", "recitation", "refusal", "blocklist", "prohibited_content", "spii":
		return FinishContentFilter
	case "tool_calls", "tool_use", "function_call":
		return FinishToolUse
	case "error":
		return FinishError
	default:
		return FinishStop
	}
}

// Usage carries token counts for text and pixel dimensions for images.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
	Width            int `json:"width,omitempty"`
	Height           int `json:"height,omitempty"`
	Images           int `json:"images,omitempty"`
}

// Result is produced once per successful provider call and never mutated afterwards.
type Result struct {
	ID            string       `json:"id,omitempty"`
	Content       string       `json:"content,omitempty"`
	URL           string       `json:"url,omitempty"`
	Data          []byte       `json:"data,omitempty"`
	MimeType      string       `json:"mime_type,omitempty"`
	RevisedPrompt string       `json:"revised_prompt,omitempty"`
	Embeddings    [][]float64  `json:"embeddings,omitempty"`
	Provider      string       `json:"provider"`
	Model         string       `json:"model"`
	Usage         Usage        `json:"usage"`
	Cost          float64      `json:"cost"`
	LatencyMs     int64        `json:"latency_ms"`
	FinishReason  FinishReason `json:"finish_reason,omitempty"`
}

// StreamChunk is one element of a streamed generation.
type StreamChunk struct {
	Content      string       `json:"content"`
	IsComplete   bool         `json:"is_complete"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
	Err          error        `json:"-"`
}

// Quantity is the unit count a cost estimate is computed for.
type Quantity struct {
	InputTokens  int
	OutputTokens int
	Images       int
}

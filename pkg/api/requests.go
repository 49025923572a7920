package api

import "encoding/json"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role" binding:"required,oneof=system user assistant"`
	Content string `json:"content" binding:"required"`
}

// GenerationOptions tune text generation. The model is chosen by the task
// route and cannot be set here.
type GenerationOptions struct {
	MaxTokens    int      `json:"max_tokens,omitempty" binding:"omitempty,gte=1,lte=200000"`
	Temperature  *float64 `json:"temperature,omitempty" binding:"omitempty,gte=0,lte=2"`
	TopP         *float64 `json:"top_p,omitempty" binding:"omitempty,gte=0,lte=1"`
	Stop         []string `json:"stop,omitempty" binding:"omitempty,max=4"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

type ImageOptions struct {
	Width          int    `json:"width,omitempty" binding:"omitempty,gte=64,lte=4096"`
	Height         int    `json:"height,omitempty" binding:"omitempty,gte=64,lte=4096"`
	Quality        string `json:"quality,omitempty" binding:"omitempty,oneof=standard hd"`
	Style          string `json:"style,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Count          int    `json:"count,omitempty" binding:"omitempty,gte=1,lte=4"`
}

// DispatchRequest is a generation request for a task type. Kind selects
// which of Messages, Prompt or Texts is used.
type DispatchRequest struct {
	Task     string             `json:"task" binding:"required"`
	Kind     string             `json:"kind,omitempty" binding:"omitempty,oneof=chat text json image embed"`
	Messages []Message          `json:"messages,omitempty" binding:"omitempty,dive"`
	Prompt   string             `json:"prompt,omitempty"`
	Texts    []string           `json:"texts,omitempty" binding:"omitempty,max=128"`
	Options  *GenerationOptions `json:"options,omitempty"`
	Image    *ImageOptions      `json:"image,omitempty"`
}

// StreamRequest streams a text completion for a task type.
type StreamRequest struct {
	Task    string             `json:"task" binding:"required"`
	Prompt  string             `json:"prompt" binding:"required"`
	Options *GenerationOptions `json:"options,omitempty"`
}

type BatchItem struct {
	ID      string          `json:"id" binding:"required"`
	Request DispatchRequest `json:"request"`
}

// BatchRequest runs items one after another, IntervalMs apart.
type BatchRequest struct {
	Items      []BatchItem `json:"items" binding:"required,min=1,max=500,dive"`
	IntervalMs int         `json:"interval_ms,omitempty" binding:"omitempty,gte=0,lte=60000"`
	Notify     bool        `json:"notify,omitempty"`
}

type PublishItem struct {
	Type    string          `json:"type" binding:"required"`
	Slug    string          `json:"slug" binding:"required"`
	Content json.RawMessage `json:"content" binding:"required"`
}

type PublishRequest struct {
	Items  []PublishItem `json:"items" binding:"required,min=1,max=500,dive"`
	Notify bool          `json:"notify,omitempty"`
}

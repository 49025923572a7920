package api

import (
	"encoding/json"
	"time"
)

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	Images           int `json:"images,omitempty"`
}

// Failure describes one candidate that did not produce the answer.
type Failure struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Kind     string `json:"kind"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts,omitempty"`
}

// Fallback reports how the candidate chain was walked.
type Fallback struct {
	ProvidersAttempted []string  `json:"providers_attempted"`
	FallbackUsed       bool      `json:"fallback_used"`
	Attempts           int       `json:"attempts"`
	Failures           []Failure `json:"failures,omitempty"`
}

type DispatchResponse struct {
	ID            string          `json:"id,omitempty"`
	Task          string          `json:"task"`
	Provider      string          `json:"provider"`
	Model         string          `json:"model"`
	Content       string          `json:"content,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
	ImageBase64   []byte          `json:"image_base64,omitempty"`
	MimeType      string          `json:"mime_type,omitempty"`
	RevisedPrompt string          `json:"revised_prompt,omitempty"`
	Embeddings    [][]float64     `json:"embeddings,omitempty"`
	FinishReason  string          `json:"finish_reason,omitempty"`
	Usage         Usage           `json:"usage"`
	Cost          float64         `json:"cost"`
	LatencyMs     int64           `json:"latency_ms"`
	Fallback      Fallback        `json:"fallback"`
}

// StreamEvent is one server-sent event of a streamed completion.
type StreamEvent struct {
	Content      string `json:"content,omitempty"`
	Done         bool   `json:"done,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
	Error        string `json:"error,omitempty"`
}

type BatchItemResult struct {
	ID       string            `json:"id"`
	Response *DispatchResponse `json:"response,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type BatchResponse struct {
	Total      int               `json:"total"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	TotalCost  float64           `json:"total_cost"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Items      []BatchItemResult `json:"items"`
}

type ProviderInfo struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	DefaultModel string   `json:"default_model"`
	Models       []string `json:"models,omitempty"`
	Priority     int      `json:"priority"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Providers int    `json:"providers"`
	Time      string `json:"time"`
}

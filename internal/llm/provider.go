package llm

import (
	"context"
)

// Provider is the contract shared by every vendor adapter.
type Provider interface {
	Name() string
	Kind() Kind
	Models() []string
	DefaultModel() string
	// EstimateCost is a pure lookup in the pricing table and is defined for
	// every advertised model, zero for free providers.
	EstimateCost(model string, q Quantity) float64
	// IsAvailable is a cheap liveness probe for diagnostics.
	IsAvailable(ctx context.Context) bool
}

// ChatProvider generates text.
type ChatProvider interface {
	Provider
	GenerateChat(ctx context.Context, messages []Message, opts Options) (*Result, error)
	// GenerateStream yields chunks until the upstream completes or the
	// connection closes. The channel is closed afterwards; a failed stream
	// ends with a chunk carrying Err. Streams are not restartable.
	GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan StreamChunk, error)
}

// ImageProvider generates images.
type ImageProvider interface {
	Provider
	GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*Result, error)
}

// EmbeddingProvider turns texts into vectors.
type EmbeddingProvider interface {
	Provider
	Embed(ctx context.Context, texts []string, opts Options) (*Result, error)
}

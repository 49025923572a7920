package llm

import (
	"time"
)

// Base implements the descriptive half of Provider for vendor adapters.
type Base struct {
	Desc Descriptor
}

func (b Base) Name() string { return b.Desc.Name }
func (b Base) Kind() Kind   { return b.Desc.Kind }

func (b Base) Models() []string {
	if len(b.Desc.Models) == 0 {
		return []string{b.Desc.DefaultModel}
	}
	return append([]string(nil), b.Desc.Models...)
}

func (b Base) DefaultModel() string { return b.Desc.DefaultModel }

func (b Base) EstimateCost(model string, q Quantity) float64 {
	return Cost(b.Desc.Name, b.Desc.Kind, b.ModelOr(model), q)
}

// ModelOr returns model, or the default model when empty.
func (b Base) ModelOr(model string) string {
	if model == "" {
		return b.Desc.DefaultModel
	}
	return model
}

// Finish stamps provider, model, billed cost and latency onto res.
func (b Base) Finish(res *Result, model string, started time.Time) *Result {
	res.Provider = b.Desc.Name
	res.Model = model
	res.LatencyMs = time.Since(started).Milliseconds()
	if res.Usage.TotalTokens == 0 {
		res.Usage.TotalTokens = res.Usage.PromptTokens + res.Usage.CompletionTokens
	}
	res.Cost = b.EstimateCost(model, Quantity{
		InputTokens:  res.Usage.PromptTokens,
		OutputTokens: res.Usage.CompletionTokens,
		Images:       res.Usage.Images,
	})
	if res.FinishReason == "" {
		res.FinishReason = FinishStop
	}
	return res
}

// Err wraps err as a ProviderError of this provider.
func (b Base) Err(err error) error {
	if err == nil {
		return nil
	}
	return NewProviderError(b.Desc.Name, err)
}

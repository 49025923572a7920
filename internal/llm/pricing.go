package llm

import "sync"

// Price is the list price of a model: USD per million tokens, or per image.
type Price struct {
	InputPer1M  float64 `json:"input_per_1m" mapstructure:"input_per_1m"`
	OutputPer1M float64 `json:"output_per_1m" mapstructure:"output_per_1m"`
	PerImage    float64 `json:"per_image" mapstructure:"per_image"`
}

const (
	unknownLLMPer1M       = 2.0
	unknownImagePrice     = 0.05
	unknownEmbeddingPer1M = 0.05
)

// freeProviders run locally and never cost anything.
var freeProviders = map[string]bool{
	"ollama": true,
}

var (
	pricesMu sync.RWMutex
	prices   = map[string]map[string]Price{
		"anthropic": {
			"claude-opus-4-20250514":    {InputPer1M: 15, OutputPer1M: 75},
			"claude-sonnet-4-20250514":  {InputPer1M: 3, OutputPer1M: 15},
			"claude-3-5-haiku-20241022": {InputPer1M: 0.8, OutputPer1M: 4},
		},
		"openai": {
			"gpt-4o":                 {InputPer1M: 2.5, OutputPer1M: 10},
			"gpt-4o-mini":            {InputPer1M: 0.15, OutputPer1M: 0.6},
			"o1":                     {InputPer1M: 15, OutputPer1M: 60},
			"o3-mini":                {InputPer1M: 1.1, OutputPer1M: 4.4},
			"text-embedding-3-large": {InputPer1M: 0.13},
			"text-embedding-3-small": {InputPer1M: 0.02},
		},
		"deepseek": {
			"deepseek-chat":     {InputPer1M: 0.14, OutputPer1M: 0.28},
			"deepseek-reasoner": {InputPer1M: 0.55, OutputPer1M: 2.19},
		},
		"google": {
			"gemini-2.0-flash":     {InputPer1M: 0.1, OutputPer1M: 0.4},
			"gemini-2.0-flash-exp": {InputPer1M: 0.075, OutputPer1M: 0.3},
			"gemini-1.5-pro":       {InputPer1M: 1.25, OutputPer1M: 5},
		},
		"groq": {
			"llama-3.3-70b-versatile": {InputPer1M: 0.59, OutputPer1M: 0.79},
			"mixtral-8x7b-32768":      {InputPer1M: 0.24, OutputPer1M: 0.24},
		},
		"openrouter": {
			"anthropic/claude-3.5-sonnet": {InputPer1M: 3, OutputPer1M: 15},
		},
		"openai-dalle": {
			"dall-e-3":    {PerImage: 0.04},
			"dall-e-3-hd": {PerImage: 0.08},
		},
		"stability": {
			"stable-diffusion-3":  {PerImage: 0.065},
			"stable-diffusion-xl": {PerImage: 0.03},
		},
		"replicate": {
			"black-forest-labs/flux-pro":     {PerImage: 0.055},
			"black-forest-labs/flux-schnell": {PerImage: 0.003},
		},
		"leonardo": {
			"phoenix": {PerImage: 0.015},
			"kino-xl": {PerImage: 0.02},
		},
		"voyage": {
			"voyage-3":      {InputPer1M: 0.06},
			"voyage-3-lite": {InputPer1M: 0.02},
		},
	}
)

// LookupPrice returns the list price of provider/model.
func LookupPrice(provider, model string) (Price, bool) {
	pricesMu.RLock()
	defer pricesMu.RUnlock()
	p, ok := prices[provider][model]
	return p, ok
}

// SetPrice overrides or adds a price, typically from configuration at startup.
func SetPrice(provider, model string, p Price) {
	pricesMu.Lock()
	defer pricesMu.Unlock()
	if prices[provider] == nil {
		prices[provider] = make(map[string]Price)
	}
	prices[provider][model] = p
}

// Cost computes the USD cost of q units of provider/model. Unknown models
// fall back to conservative defaults so every model has a defined price.
func Cost(provider string, kind Kind, model string, q Quantity) float64 {
	if freeProviders[provider] {
		return 0
	}
	price, known := LookupPrice(provider, model)

	switch kind {
	case KindImage:
		images := q.Images
		if images < 1 {
			images = 1
		}
		if !known || price.PerImage == 0 {
			return float64(images) * unknownImagePrice
		}
		return float64(images) * price.PerImage
	case KindEmbedding:
		if !known {
			return float64(q.InputTokens) / 1_000_000 * unknownEmbeddingPer1M
		}
		return float64(q.InputTokens) / 1_000_000 * price.InputPer1M
	default:
		if !known {
			return float64(q.InputTokens+q.OutputTokens) / 1_000_000 * unknownLLMPer1M
		}
		return float64(q.InputTokens)/1_000_000*price.InputPer1M +
			float64(q.OutputTokens)/1_000_000*price.OutputPer1M
	}
}

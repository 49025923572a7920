// Package routing resolves task types to provider chains.
package routing

import (
	"time"
)

// Task types known to the static table.
const (
	TaskContentGeneration   = "content-generation"
	TaskContentRewrite      = "content-rewrite"
	TaskContentTranslation  = "content-translation"
	TaskQuick               = "quick-task"
	TaskAnalysis            = "analysis"
	TaskReasoning           = "reasoning"
	TaskCodeGeneration      = "code-generation"
	TaskImageArticle        = "image-article"
	TaskImageProduct        = "image-product"
	TaskImageLifestyle      = "image-lifestyle"
	TaskImageBanner         = "image-banner"
	TaskEmbeddingSearch     = "embedding-search"
	TaskEmbeddingSimilarity = "embedding-similarity"
)

// Defaults applied to route documents that leave a field empty.
const (
	DefaultMaxRetries = 2
	DefaultTimeout    = 60 * time.Second
	DefaultMaxCost    = 0.5
)

// TaskRoute maps a task type to a preferred provider and its fallbacks.
type TaskRoute struct {
	Task              string        `json:"task" yaml:"task"`
	PreferredProvider string        `json:"preferred_provider" yaml:"preferred_provider"`
	PreferredModel    string        `json:"preferred_model" yaml:"preferred_model"`
	FallbackModels    []string      `json:"fallback_models,omitempty" yaml:"fallback_models"`
	FallbackProviders []string      `json:"fallback_providers,omitempty" yaml:"fallback_providers"`
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	MaxCostPerRequest float64       `json:"max_cost_per_request" yaml:"max_cost"`
}

// withDefaults fills zero fields. A negative MaxRetries disables retries.
func (r TaskRoute) withDefaults() TaskRoute {
	if r.MaxRetries == 0 {
		r.MaxRetries = DefaultMaxRetries
	}
	if r.MaxRetries < 0 {
		r.MaxRetries = 0
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultTimeout
	}
	if r.MaxCostPerRequest <= 0 {
		r.MaxCostPerRequest = DefaultMaxCost
	}
	return r
}

// Candidate is one (provider, model) pair of a fallback chain.
type Candidate struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (c Candidate) String() string {
	return c.Provider + "/" + c.Model
}

// Candidates builds the ordered chain: the preferred model, the fallback
// models on the preferred provider, then each fallback provider with its
// default model. Duplicate (provider, model) pairs keep their first position.
func Candidates(route TaskRoute, defaultModel func(provider string) string) []Candidate {
	out := make([]Candidate, 0, 1+len(route.FallbackModels)+len(route.FallbackProviders))
	seen := make(map[Candidate]bool)
	add := func(c Candidate) {
		if c.Provider == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}

	preferredModel := route.PreferredModel
	if preferredModel == "" {
		preferredModel = defaultModel(route.PreferredProvider)
	}
	add(Candidate{Provider: route.PreferredProvider, Model: preferredModel})
	for _, m := range route.FallbackModels {
		add(Candidate{Provider: route.PreferredProvider, Model: m})
	}
	for _, p := range route.FallbackProviders {
		add(Candidate{Provider: p, Model: defaultModel(p)})
	}
	return out
}

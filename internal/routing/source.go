package routing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nulzo/content-orchestrator/internal/httpclient"
	"github.com/nulzo/content-orchestrator/internal/llm"
)

// Source reads routing and provider documents from the configuration store.
type Source interface {
	TaskRoutes(ctx context.Context) ([]TaskRoute, error)
	ProviderSettings(ctx context.Context) ([]llm.Descriptor, error)
}

// HTTPSource talks to a Payload-style REST store returning {docs: [...]}.
type HTTPSource struct {
	baseURL string
	token   string
	client  httpclient.HTTPClient
}

func NewHTTPSource(baseURL, token string, client httpclient.HTTPClient) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

type modelRef struct {
	Model string `json:"model"`
}

type taskRoutingDoc struct {
	Task              string     `json:"task"`
	PreferredProvider string     `json:"preferredProvider"`
	PreferredModel    string     `json:"preferredModel"`
	FallbackModels    []modelRef `json:"fallbackModels"`
	FallbackProviders []string   `json:"fallbackProviders"`
	MaxRetries        int        `json:"maxRetries"`
	TimeoutMs         int64      `json:"timeoutMs"`
	MaxCost           float64    `json:"maxCost"`
}

type providerSettingsDoc struct {
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Enabled         bool       `json:"enabled"`
	Priority        int        `json:"priority"`
	DefaultModel    string     `json:"defaultModel"`
	AvailableModels []modelRef `json:"availableModels"`
	APIKeyEnvVar    string     `json:"apiKeyEnvVar"`
	BaseURL         string     `json:"baseUrl"`
	MaxTokens       int        `json:"maxTokens"`
}

type docList[T any] struct {
	Docs []T `json:"docs"`
}

func (s *HTTPSource) headers() map[string]string {
	if s.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "users API-Key " + s.token}
}

func (s *HTTPSource) TaskRoutes(ctx context.Context) ([]TaskRoute, error) {
	var list docList[taskRoutingDoc]
	if err := httpclient.SendRequest(ctx, s.client, http.MethodGet, s.baseURL+"/api/task-routing?limit=100", s.headers(), nil, &list); err != nil {
		return nil, err
	}

	routes := make([]TaskRoute, 0, len(list.Docs))
	for _, d := range list.Docs {
		if d.Task == "" || d.PreferredProvider == "" {
			continue
		}
		r := TaskRoute{
			Task:              d.Task,
			PreferredProvider: d.PreferredProvider,
			PreferredModel:    d.PreferredModel,
			FallbackProviders: d.FallbackProviders,
			MaxRetries:        d.MaxRetries,
			MaxCostPerRequest: d.MaxCost,
		}
		for _, m := range d.FallbackModels {
			if m.Model != "" {
				r.FallbackModels = append(r.FallbackModels, m.Model)
			}
		}
		if d.TimeoutMs > 0 {
			r.Timeout = time.Duration(d.TimeoutMs) * time.Millisecond
		}
		routes = append(routes, r.withDefaults())
	}
	return routes, nil
}

// ProviderSettings returns descriptors without credentials; the documents
// only name the environment variable holding the key.
func (s *HTTPSource) ProviderSettings(ctx context.Context) ([]llm.Descriptor, error) {
	var list docList[providerSettingsDoc]
	if err := httpclient.SendRequest(ctx, s.client, http.MethodGet, s.baseURL+"/api/provider-settings?limit=100", s.headers(), nil, &list); err != nil {
		return nil, err
	}

	descs := make([]llm.Descriptor, 0, len(list.Docs))
	for _, p := range list.Docs {
		if p.Name == "" || p.DefaultModel == "" {
			continue
		}
		d := llm.Descriptor{
			Name:         p.Name,
			Kind:         llm.Kind(p.Type),
			DefaultModel: p.DefaultModel,
			APIKeyEnv:    p.APIKeyEnvVar,
			BaseURL:      p.BaseURL,
			Enabled:      p.Enabled,
			Priority:     p.Priority,
			MaxTokens:    p.MaxTokens,
			KeyOptional:  p.Name == "ollama",
		}
		if d.Kind == "" {
			d.Kind = llm.KindLLM
		}
		if d.Priority == 0 {
			d.Priority = 10
		}
		if d.MaxTokens == 0 {
			d.MaxTokens = 4096
		}
		for _, m := range p.AvailableModels {
			if m.Model != "" {
				d.Models = append(d.Models, m.Model)
			}
		}
		descs = append(descs, d)
	}
	return descs, nil
}

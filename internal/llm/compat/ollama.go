package compat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nulzo/content-orchestrator/internal/httpclient"
	"github.com/nulzo/content-orchestrator/internal/llm"
)

const ollamaDefaultURL = "http://localhost:11434/v1"

// Ollama is a local, free chat provider. It speaks the compatible surface
// under /v1 and its native API for model discovery.
type Ollama struct {
	*Adapter
	root  string
	probe *http.Client
}

func NewOllama(d llm.Descriptor) (llm.Provider, error) {
	d.KeyOptional = true
	if d.BaseURL == "" {
		d.BaseURL = ollamaDefaultURL
	}
	if !strings.HasSuffix(strings.TrimRight(d.BaseURL, "/"), "/v1") {
		d.BaseURL = strings.TrimRight(d.BaseURL, "/") + "/v1"
	}
	a := newAdapter(d, vendor{kind: llm.KindLLM})
	return &Ollama{
		Adapter: a,
		root:    strings.TrimSuffix(a.baseURL, "/v1"),
		probe:   &http.Client{Timeout: 5 * time.Second},
	}, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	} `json:"models"`
}

// LocalModels lists the models pulled on the Ollama host.
func (o *Ollama) LocalModels(ctx context.Context) ([]string, error) {
	var resp tagsResponse
	if err := httpclient.SendRequest(ctx, o.probe, http.MethodGet, o.root+"/api/tags", nil, nil, &resp); err != nil {
		return nil, o.Err(err)
	}
	out := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		out = append(out, m.Name)
	}
	return out, nil
}

// IsAvailable reports whether the host is up and has the default model pulled.
func (o *Ollama) IsAvailable(ctx context.Context) bool {
	models, err := o.LocalModels(ctx)
	if err != nil {
		return false
	}
	want := o.DefaultModel()
	for _, m := range models {
		if m == want || strings.SplitN(m, ":", 2)[0] == want {
			return true
		}
	}
	return false
}

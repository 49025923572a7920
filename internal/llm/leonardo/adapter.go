package leonardo

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nulzo/content-orchestrator/internal/httpclient"
	"github.com/nulzo/content-orchestrator/internal/llm"
)

const pn string = "leonardo"

func init() {
	llm.Register(pn, NewAdapter)
}

// modelIDs maps friendly model names to Leonardo platform model ids.
// Unknown names are sent as ids verbatim.
var modelIDs = map[string]string{
	"phoenix": "de7d3faf-762f-48e0-b3b7-9d0ac3a3fcf3",
	"kino-xl": "aa77f04e-3eec-4034-9c07-d0f619684628",
}

// Adapter generates images with Leonardo.ai, which works asynchronously.
type Adapter struct {
	llm.Base
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxWait      time.Duration
}

func NewAdapter(d llm.Descriptor) (llm.Provider, error) {
	if d.Kind == "" {
		d.Kind = llm.KindImage
	}
	base := d.BaseURL
	if base == "" {
		base = "https://cloud.leonardo.ai/api/rest/v1"
	}
	return &Adapter{
		Base:         llm.Base{Desc: d},
		baseURL:      strings.TrimRight(base, "/"),
		client:       &http.Client{Timeout: 30 * time.Second},
		pollInterval: 2 * time.Second,
		maxWait:      3 * time.Minute,
	}, nil
}

type generationRequest struct {
	Prompt         string `json:"prompt"`
	ModelID        string `json:"modelId"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	NumImages      int    `json:"num_images"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	PresetStyle    string `json:"presetStyle,omitempty"`
}

type generationJob struct {
	SDGenerationJob struct {
		GenerationID string `json:"generationId"`
	} `json:"sdGenerationJob"`
}

type generationStatus struct {
	Generation struct {
		Status          string `json:"status"`
		GeneratedImages []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"generated_images"`
	} `json:"generations_by_pk"`
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.Desc.APIKey}
}

func (a *Adapter) GenerateImage(ctx context.Context, prompt string, opts llm.ImageOptions) (*llm.Result, error) {
	started := time.Now()
	model := a.ModelOr(opts.Model)
	w, h := opts.Size()

	id, ok := modelIDs[model]
	if !ok {
		id = model
	}
	req := generationRequest{
		Prompt:         prompt,
		ModelID:        id,
		Width:          w,
		Height:         h,
		NumImages:      opts.Images(),
		NegativePrompt: opts.NegativePrompt,
		PresetStyle:    strings.ToUpper(opts.Style),
	}

	var job generationJob
	if err := httpclient.SendRequest(ctx, a.client, http.MethodPost, a.baseURL+"/generations", a.headers(), req, &job); err != nil {
		return nil, a.Err(err)
	}
	genID := job.SDGenerationJob.GenerationID
	if genID == "" {
		return nil, llm.NoContent(a.Name())
	}

	var status generationStatus
	err := llm.Poll(ctx, a.pollInterval, a.maxWait, func(ctx context.Context) (bool, error) {
		if err := httpclient.SendRequest(ctx, a.client, http.MethodGet, a.baseURL+"/generations/"+genID, a.headers(), nil, &status); err != nil {
			return false, err
		}
		switch status.Generation.Status {
		case "COMPLETE":
			return true, nil
		case "FAILED":
			return false, fmt.Errorf("generation %s failed", genID)
		}
		return false, nil
	})
	if err != nil {
		return nil, a.Err(err)
	}

	images := status.Generation.GeneratedImages
	if len(images) == 0 || images[0].URL == "" {
		return nil, llm.NoContent(a.Name())
	}
	return a.Finish(&llm.Result{
		ID:    genID,
		URL:   images[0].URL,
		Usage: llm.Usage{Width: w, Height: h, Images: len(images)},
	}, model, started), nil
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	return httpclient.SendRequest(ctx, a.client, http.MethodGet, a.baseURL+"/me", a.headers(), nil, nil) == nil
}

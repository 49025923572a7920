package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nulzo/content-orchestrator/internal/httpclient"
	"github.com/nulzo/content-orchestrator/internal/llm"
)

const pn string = "replicate"

func init() {
	llm.Register(pn, NewAdapter)
}

// Adapter runs image models hosted on Replicate.
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
		base = "https://api.replicate.com/v1"
	}
	return &Adapter{
		Base:         llm.Base{Desc: d},
		baseURL:      strings.TrimRight(base, "/"),
		client:       &http.Client{Timeout: 30 * time.Second},
		pollInterval: time.Second,
		maxWait:      5 * time.Minute,
	}, nil
}

type predictionRequest struct {
	Input map[string]any `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  any             `json:"error,omitempty"`
}

// imageURL accepts the two output shapes: a string or a list of strings.
func (p prediction) imageURL() string {
	var one string
	if err := json.Unmarshal(p.Output, &one); err == nil {
		return one
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.Desc.APIKey}
}

func (a *Adapter) GenerateImage(ctx context.Context, prompt string, opts llm.ImageOptions) (*llm.Result, error) {
	started := time.Now()
	model := a.ModelOr(opts.Model)
	w, h := opts.Size()

	input := map[string]any{
		"prompt":              prompt,
		"width":               w,
		"height":              h,
		"num_inference_steps": 40,
		"guidance_scale":      6.0,
		"num_outputs":         opts.Images(),
	}
	if opts.Quality == "hd" {
		input["num_inference_steps"] = 60
		input["guidance_scale"] = 7.5
	}
	if opts.NegativePrompt != "" {
		input["negative_prompt"] = opts.NegativePrompt
	}

	var pred prediction
	url := fmt.Sprintf("%s/models/%s/predictions", a.baseURL, model)
	if err := httpclient.SendRequest(ctx, a.client, http.MethodPost, url, a.headers(), predictionRequest{Input: input}, &pred); err != nil {
		return nil, a.Err(err)
	}

	err := llm.Poll(ctx, a.pollInterval, a.maxWait, func(ctx context.Context) (bool, error) {
		if err := httpclient.SendRequest(ctx, a.client, http.MethodGet, a.baseURL+"/predictions/"+pred.ID, a.headers(), nil, &pred); err != nil {
			return false, err
		}
		switch pred.Status {
		case "succeeded":
			return true, nil
		case "failed", "canceled":
			return false, fmt.Errorf("prediction %s %s: %v", pred.ID, pred.Status, pred.Error)
		}
		return false, nil
	})
	if err != nil {
		return nil, a.Err(err)
	}

	url = pred.imageURL()
	if url == "" {
		return nil, llm.NoContent(a.Name())
	}
	return a.Finish(&llm.Result{
		ID:    pred.ID,
		URL:   url,
		Usage: llm.Usage{Width: w, Height: h, Images: opts.Images()},
	}, model, started), nil
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	return httpclient.SendRequest(ctx, a.client, http.MethodGet, a.baseURL+"/models", a.headers(), nil, nil) == nil
}

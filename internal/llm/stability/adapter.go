package stability

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/nulzo/content-orchestrator/internal/httpclient"
	"github.com/nulzo/content-orchestrator/internal/llm"
)

const pn string = "stability"

func init() {
	llm.Register(pn, NewAdapter)
}

// endpoints maps advertised model names to stable-image generate endpoints.
var endpoints = map[string]string{
	"stable-diffusion-3":  "sd3",
	"stable-diffusion-xl": "core",
	"stable-image-core":   "core",
	"stable-image-ultra":  "ultra",
}

var aspectRatios = []struct {
	name  string
	ratio float64
}{
	{"1:1", 1}, {"16:9", 16.0 / 9}, {"21:9", 21.0 / 9}, {"2:3", 2.0 / 3}, {"3:2", 3.0 / 2},
	{"4:5", 4.0 / 5}, {"5:4", 5.0 / 4}, {"9:16", 9.0 / 16}, {"9:21", 9.0 / 21},
}

// Adapter generates images with the Stability v2beta API.
type Adapter struct {
	llm.Base
	baseURL string
	client  *http.Client
}

func NewAdapter(d llm.Descriptor) (llm.Provider, error) {
	if d.Kind == "" {
		d.Kind = llm.KindImage
	}
	base := d.BaseURL
	if base == "" {
		base = "https://api.stability.ai"
	}
	return &Adapter{
		Base:    llm.Base{Desc: d},
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// AspectRatio returns the supported ratio closest to w:h.
func AspectRatio(w, h int) string {
	want := float64(w) / float64(h)
	best, diff := "1:1", math.MaxFloat64
	for _, ar := range aspectRatios {
		if d := math.Abs(ar.ratio - want); d < diff {
			best, diff = ar.name, d
		}
	}
	return best
}

type generateResponse struct {
	Image        string `json:"image"`
	FinishReason string `json:"finish_reason"`
	Seed         int64  `json:"seed"`
}

func (a *Adapter) GenerateImage(ctx context.Context, prompt string, opts llm.ImageOptions) (*llm.Result, error) {
	started := time.Now()
	model := a.ModelOr(opts.Model)
	w, h := opts.Size()

	endpoint, ok := endpoints[model]
	if !ok {
		endpoint = "sd3"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"prompt":        prompt,
		"aspect_ratio":  AspectRatio(w, h),
		"output_format": "png",
	}
	if opts.NegativePrompt != "" {
		fields["negative_prompt"] = opts.NegativePrompt
	}
	if endpoint == "sd3" && model != "stable-diffusion-3" {
		fields["model"] = model
	}
	if opts.Style != "" {
		fields["style_preset"] = opts.Style
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return nil, a.Err(err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, a.Err(err)
	}

	var resp generateResponse
	url := fmt.Sprintf("%s/v2beta/stable-image/generate/%s", a.baseURL, endpoint)
	headers := map[string]string{"Authorization": "Bearer " + a.Desc.APIKey}
	if err := httpclient.SendRaw(ctx, a.client, http.MethodPost, url, headers, form.FormDataContentType(), &body, &resp); err != nil {
		return nil, a.Err(err)
	}
	if resp.FinishReason == "CONTENT_FILTERED" {
		return nil, &llm.ProviderError{Provider: a.Name(), Message: "content filtered"}
	}
	if resp.Image == "" {
		return nil, llm.NoContent(a.Name())
	}

	data, err := base64.StdEncoding.DecodeString(resp.Image)
	if err != nil {
		return nil, a.Err(err)
	}
	return a.Finish(&llm.Result{
		Data:     data,
		MimeType: "image/png",
		Usage:    llm.Usage{Width: w, Height: h, Images: 1},
	}, model, started), nil
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	headers := map[string]string{"Authorization": "Bearer " + a.Desc.APIKey}
	return httpclient.SendRequest(ctx, a.client, http.MethodGet, a.baseURL+"/v1/user/account", headers, nil, nil) == nil
}

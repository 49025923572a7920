package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/nulzo/content-orchestrator/internal/llm"
)

// ImageAdapter generates images with the DALL-E family.
type ImageAdapter struct {
	llm.Base
	client sdk.Client
}

func NewImageAdapter(d llm.Descriptor) (llm.Provider, error) {
	if d.Kind == "" {
		d.Kind = llm.KindImage
	}
	return &ImageAdapter{Base: llm.Base{Desc: d}, client: newClient(d)}, nil
}

func (a *ImageAdapter) GenerateImage(ctx context.Context, prompt string, opts llm.ImageOptions) (*llm.Result, error) {
	started := time.Now()
	model := a.ModelOr(opts.Model)
	w, h := opts.Size()

	params := sdk.ImageGenerateParams{
		Prompt: prompt,
		Model:  sdk.ImageModel(model),
		N:      sdk.Int(int64(opts.Images())),
		Size:   sdk.ImageGenerateParamsSize(fmt.Sprintf("%dx%d", w, h)),
	}
	if opts.Quality != "" {
		params.Quality = sdk.ImageGenerateParamsQuality(opts.Quality)
	}
	if opts.Style != "" {
		params.Style = sdk.ImageGenerateParamsStyle(opts.Style)
	}

	resp, err := a.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, wrap(a.Name(), err)
	}
	if len(resp.Data) == 0 {
		return nil, llm.NoContent(a.Name())
	}

	img := resp.Data[0]
	res := &llm.Result{
		URL:           img.URL,
		RevisedPrompt: img.RevisedPrompt,
		Usage:         llm.Usage{Width: w, Height: h, Images: len(resp.Data)},
	}
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, llm.NewProviderError(a.Name(), err)
		}
		res.Data, res.MimeType = data, "image/png"
	}
	if res.URL == "" && res.Data == nil {
		return nil, llm.NoContent(a.Name())
	}

	// hd quality is priced as its own model
	priced := model
	if opts.Quality == "hd" {
		priced = model + "-hd"
	}
	a.Finish(res, priced, started)
	res.Model = model
	return res, nil
}

func (a *ImageAdapter) IsAvailable(ctx context.Context) bool {
	_, err := a.client.Models.List(ctx)
	return err == nil
}

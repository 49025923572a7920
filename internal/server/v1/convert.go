package v1

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/internal/orchestrator"
	"github.com/nulzo/content-orchestrator/pkg/api"
)

// checkDispatch reports the inputs a request kind needs but lacks.
func checkDispatch(req *api.DispatchRequest) map[string]string {
	errs := map[string]string{}
	switch orchestrator.RequestKind(req.Kind) {
	case orchestrator.KindChat, "":
		if len(req.Messages) == 0 {
			errs["messages"] = "messages is required for chat requests"
		}
	case orchestrator.KindText, orchestrator.KindJSON, orchestrator.KindImage:
		if strings.TrimSpace(req.Prompt) == "" {
			errs["prompt"] = fmt.Sprintf("prompt is required for %s requests", req.Kind)
		}
	case orchestrator.KindEmbed:
		if len(req.Texts) == 0 {
			errs["texts"] = "texts is required for embed requests"
		}
	}
	return errs
}

func toOptions(o *api.GenerationOptions) llm.Options {
	if o == nil {
		return llm.Options{}
	}
	return llm.Options{
		MaxTokens:     o.MaxTokens,
		Temperature:   o.Temperature,
		TopP:          o.TopP,
		StopSequences: o.Stop,
		SystemPrompt:  o.SystemPrompt,
	}
}

func toImageOptions(o *api.ImageOptions) llm.ImageOptions {
	if o == nil {
		return llm.ImageOptions{}
	}
	return llm.ImageOptions{
		Width:          o.Width,
		Height:         o.Height,
		Quality:        o.Quality,
		Style:          o.Style,
		NegativePrompt: o.NegativePrompt,
		Count:          o.Count,
	}
}

func toRequest(req *api.DispatchRequest) orchestrator.Request {
	messages := make([]llm.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = llm.Message{Role: llm.Role(m.Role), Content: m.Content}
	}
	return orchestrator.Request{
		Task:     req.Task,
		Kind:     orchestrator.RequestKind(req.Kind),
		Messages: messages,
		Prompt:   req.Prompt,
		Texts:    req.Texts,
		Options:  toOptions(req.Options),
		Image:    toImageOptions(req.Image),
	}
}

func toUsage(u llm.Usage) api.Usage {
	return api.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		Images:           u.Images,
	}
}

func toFallback(out *orchestrator.Outcome) api.Fallback {
	fb := api.Fallback{
		ProvidersAttempted: out.ProvidersAttempted,
		FallbackUsed:       out.FallbackUsed,
		Attempts:           out.Attempts,
	}
	for _, f := range out.Failures {
		fb.Failures = append(fb.Failures, api.Failure{
			Provider: f.Candidate.Provider,
			Model:    f.Candidate.Model,
			Kind:     string(f.Kind),
			Reason:   f.Reason,
			Attempts: f.Attempts,
		})
	}
	return fb
}

func toResponse(out *orchestrator.Outcome) *api.DispatchResponse {
	resp := &api.DispatchResponse{
		Task:     out.TaskType,
		Provider: out.Candidate.Provider,
		Model:    out.Candidate.Model,
		Fallback: toFallback(out),
	}
	if len(out.Data) > 0 {
		resp.Data = json.RawMessage(out.Data)
	}
	if r := out.Result; r != nil {
		resp.ID = r.ID
		resp.Model = r.Model
		resp.Content = r.Content
		resp.ImageURL = r.URL
		resp.ImageBase64 = r.Data
		resp.MimeType = r.MimeType
		resp.RevisedPrompt = r.RevisedPrompt
		resp.Embeddings = r.Embeddings
		resp.FinishReason = string(r.FinishReason)
		resp.Usage = toUsage(r.Usage)
		resp.Cost = r.Cost
		resp.LatencyMs = r.LatencyMs
	}
	return resp
}

func toBatchResponse(report *orchestrator.BatchReport) *api.BatchResponse {
	resp := &api.BatchResponse{
		Total:      report.Total,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		Skipped:    report.Skipped,
		TotalCost:  report.TotalCost,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Items:      make([]api.BatchItemResult, 0, len(report.Items)),
	}
	for _, it := range report.Items {
		item := api.BatchItemResult{ID: it.ID, Error: it.Error}
		if it.Outcome != nil && it.Err == nil {
			item.Response = toResponse(it.Outcome)
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}

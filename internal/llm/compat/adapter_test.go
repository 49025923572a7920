package compat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nulzo/content-orchestrator/internal/httpclient"
	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deepseek(url string) *Adapter {
	return newAdapter(llm.Descriptor{
		Name:         "deepseek",
		DefaultModel: "deepseek-chat",
		APIKey:       "sk-ds",
		BaseURL:      url,
	}, vendors["deepseek"])
}

func TestGenerateChat_StripsThinking(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-ds", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-chat", req.Model)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		_, _ = w.Write([]byte(`{
			"id": "r1",
			"choices": [{"message": {"role": "assistant", "content": "<think>hmm</think>\n{\"a\":1}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	res, err := deepseek(server.URL).GenerateChat(context.Background(), llm.BuildMessages("", "Hi"),
		llm.Options{ResponseFormat: llm.FormatJSON})
	require.NoError(t, err)

	assert.Equal(t, `{"a":1}`, res.Content)
	assert.Equal(t, "deepseek", res.Provider)
	assert.Equal(t, 15, res.Usage.TotalTokens)
}

func TestGenerateChat_UpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`bad gateway`))
	}))
	defer server.Close()

	_, err := deepseek(server.URL).GenerateChat(context.Background(), llm.BuildMessages("", "Hi"), llm.Options{})

	var perr *llm.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
	var up *httpclient.UpstreamError
	assert.ErrorAs(t, err, &up)
}

func TestGenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		for _, delta := range []string{"<thi", "nk>plan</think>", "Hel", "lo"} {
			b, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]string{"content": delta}}}})
			_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
		}
		_, _ = fmt.Fprint(w, `data: {"choices":[{"delta":{},"finish_reason":"length"}],"usage":{"prompt_tokens":2,"completion_tokens":4,"total_tokens":6}}`+"\n\n")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		_, _ = fmt.Fprint(w, "data: {\"never\": \"read\"}\n\n")
	}))
	defer server.Close()

	ch, err := deepseek(server.URL).GenerateStream(context.Background(), "Hi", llm.Options{})
	require.NoError(t, err)

	var text string
	var last llm.StreamChunk
	for c := range ch {
		require.NoError(t, c.Err)
		text += c.Content
		last = c
	}
	assert.Equal(t, "Hello", text)
	assert.True(t, last.IsComplete)
	assert.Equal(t, llm.FinishLength, last.FinishReason)
	assert.Equal(t, 6, last.Usage.TotalTokens)
}

func TestEmbed_Voyage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"data": [{"index": 0, "embedding": [1, 2]}, {"index": 1, "embedding": [3, 4]}], "usage": {"total_tokens": 1000000}}`))
	}))
	defer server.Close()

	a := newAdapter(llm.Descriptor{Name: "voyage", DefaultModel: "voyage-3", APIKey: "v", BaseURL: server.URL}, vendors["voyage"])
	assert.Equal(t, llm.KindEmbedding, a.Kind())

	res, err := a.Embed(context.Background(), []string{"x", "y"}, llm.Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, res.Embeddings)
}

func TestOllama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models": [{"name": "llama3.2:latest", "size": 1}]}`))
		case "/v1/chat/completions":
			assert.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "local"}}], "usage": {"prompt_tokens": 1000, "completion_tokens": 1000}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	p, err := NewOllama(llm.Descriptor{Name: "ollama", DefaultModel: "llama3.2", BaseURL: server.URL})
	require.NoError(t, err)
	o := p.(*Ollama)

	assert.True(t, o.IsAvailable(context.Background()))

	res, err := o.GenerateChat(context.Background(), llm.BuildMessages("", "Hi"), llm.Options{})
	require.NoError(t, err)
	assert.Equal(t, "local", res.Content)
	assert.Zero(t, res.Cost)
	assert.Equal(t, 2000, res.Usage.TotalTokens)
}

package replicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, url string) *Adapter {
	t.Helper()
	p, err := NewAdapter(llm.Descriptor{
		Name:         pn,
		DefaultModel: "black-forest-labs/flux-schnell",
		APIKey:       "r8_test",
		BaseURL:      url,
	})
	require.NoError(t, err)
	a := p.(*Adapter)
	a.pollInterval = 5 * time.Millisecond
	return a
}

func TestGenerateImage_PollsUntilSucceeded(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer r8_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost:
			assert.Equal(t, "/models/black-forest-labs/flux-schnell/predictions", r.URL.Path)
			var body predictionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "a lighthouse", body.Input["prompt"])
			assert.EqualValues(t, 60, body.Input["num_inference_steps"])
			_, _ = w.Write([]byte(`{"id": "p1", "status": "starting"}`))
		case polls.Add(1) < 3:
			_, _ = w.Write([]byte(`{"id": "p1", "status": "processing"}`))
		default:
			_, _ = w.Write([]byte(`{"id": "p1", "status": "succeeded", "output": ["https://replicate.delivery/p1.webp"]}`))
		}
	}))
	defer server.Close()

	res, err := newTestAdapter(t, server.URL).GenerateImage(context.Background(), "a lighthouse", llm.ImageOptions{Quality: "hd"})
	require.NoError(t, err)

	assert.Equal(t, "https://replicate.delivery/p1.webp", res.URL)
	assert.Equal(t, int32(3), polls.Load())
	assert.Equal(t, 1024, res.Usage.Width)
	assert.InDelta(t, 0.003, res.Cost, 1e-9)
}

func TestGenerateImage_Failed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"id": "p2", "status": "starting"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id": "p2", "status": "failed", "error": "NSFW content detected"}`))
	}))
	defer server.Close()

	_, err := newTestAdapter(t, server.URL).GenerateImage(context.Background(), "x", llm.ImageOptions{})
	var perr *llm.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "NSFW")
}

func TestGenerateImage_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "p3", "status": "processing"}`))
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	a.maxWait = 30 * time.Millisecond

	_, err := a.GenerateImage(context.Background(), "x", llm.ImageOptions{})
	assert.ErrorIs(t, err, llm.ErrPollTimeout)
	assert.Contains(t, err.Error(), "timeout")
}

func TestPredictionImageURL(t *testing.T) {
	assert.Equal(t, "u", prediction{Output: json.RawMessage(`"u"`)}.imageURL())
	assert.Equal(t, "a", prediction{Output: json.RawMessage(`["a","b"]`)}.imageURL())
	assert.Equal(t, "", prediction{}.imageURL())
}

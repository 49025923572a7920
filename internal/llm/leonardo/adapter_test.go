package leonardo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateImage(t *testing.T) {
	polled := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			var req generationRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, modelIDs["phoenix"], req.ModelID)
			assert.Equal(t, 2, req.NumImages)
			_, _ = w.Write([]byte(`{"sdGenerationJob": {"generationId": "g1"}}`))
			return
		}

		assert.Equal(t, "/generations/g1", r.URL.Path)
		polled++
		if polled == 1 {
			_, _ = w.Write([]byte(`{"generations_by_pk": {"status": "PENDING", "generated_images": []}}`))
			return
		}
		_, _ = w.Write([]byte(`{"generations_by_pk": {"status": "COMPLETE", "generated_images": [
			{"id": "i1", "url": "https://cdn.leonardo.ai/i1.jpg"},
			{"id": "i2", "url": "https://cdn.leonardo.ai/i2.jpg"}
		]}}`))
	}))
	defer server.Close()

	p, err := NewAdapter(llm.Descriptor{Name: pn, DefaultModel: "phoenix", APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)
	a := p.(*Adapter)
	a.pollInterval = 5 * time.Millisecond

	res, err := a.GenerateImage(context.Background(), "castle", llm.ImageOptions{Count: 2})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.leonardo.ai/i1.jpg", res.URL)
	assert.Equal(t, 2, res.Usage.Images)
	assert.InDelta(t, 0.03, res.Cost, 1e-9)
}

func TestGenerateImage_Failed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"sdGenerationJob": {"generationId": "g2"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"generations_by_pk": {"status": "FAILED"}}`))
	}))
	defer server.Close()

	p, _ := NewAdapter(llm.Descriptor{Name: pn, DefaultModel: "phoenix", APIKey: "k", BaseURL: server.URL})
	a := p.(*Adapter)
	a.pollInterval = 5 * time.Millisecond

	_, err := a.GenerateImage(context.Background(), "castle", llm.ImageOptions{})
	assert.ErrorContains(t, err, "generation g2 failed")
}

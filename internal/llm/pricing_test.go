package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 3, EstimateTokens("hello world"))
	// 10 Cyrillic runes at 2.5 chars per token
	assert.Equal(t, 4, EstimateTokens("приветмира"))
	assert.Equal(t, 5, EstimateMessagesTokens([]Message{{Content: "hello world"}, {Content: "12345678"}}))
}

func TestCost(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		kind     Kind
		model    string
		q        Quantity
		want     float64
	}{
		{"known llm", "openai", KindLLM, "gpt-4o", Quantity{InputTokens: 1_000_000, OutputTokens: 1_000_000}, 12.5},
		{"unknown llm", "openai", KindLLM, "gpt-x", Quantity{InputTokens: 500_000, OutputTokens: 500_000}, 2},
		{"known image", "openai-dalle", KindImage, "dall-e-3", Quantity{Images: 2}, 0.08},
		{"unknown image", "leonardo", KindImage, "mystery", Quantity{}, 0.05},
		{"embedding", "openai", KindEmbedding, "text-embedding-3-small", Quantity{InputTokens: 1_000_000}, 0.02},
		{"unknown embedding", "cohere", KindEmbedding, "embed-v3", Quantity{InputTokens: 2_000_000}, 0.1},
		{"free provider", "ollama", KindLLM, "llama3.2", Quantity{InputTokens: 1_000_000}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cost(tt.provider, tt.kind, tt.model, tt.q), 1e-9)
		})
	}
}

func TestSetPrice(t *testing.T) {
	SetPrice("custom-test", "m1", Price{InputPer1M: 1, OutputPer1M: 1})
	p, ok := LookupPrice("custom-test", "m1")
	assert.True(t, ok)
	assert.Equal(t, 1.0, p.InputPer1M)
}

func TestNormalizeFinishReason(t *testing.T) {
	assert.Equal(t, FinishStop, NormalizeFinishReason("end_turn"))
	assert.Equal(t, FinishStop, NormalizeFinishReason("stop_sequence"))
	assert.Equal(t, FinishStop, NormalizeFinishReason("STOP"))
	assert.Equal(t, FinishLength, NormalizeFinishReason("max_tokens"))
	assert.Equal(t, FinishLength, NormalizeFinishReason("MAX_TOKENS"))
	assert.Equal(t, FinishContentFilter, NormalizeFinishReason("SAFETY"))
	assert.Equal(t, FinishToolUse, NormalizeFinishReason("tool_calls"))
}

func TestResolveCredentials(t *testing.T) {
	env := map[string]string{
		"ANTHROPIC_API_KEY": "sk-ant",
		"CUSTOM_KEY":        "sk-custom",
		"OLLAMA_BASE_URL":   "http://gpu:11434/v1",
	}
	getenv := func(k string) string { return env[k] }

	d := ResolveCredentials(Descriptor{Name: "anthropic"}, getenv)
	assert.Equal(t, "sk-ant", d.APIKey)

	d = ResolveCredentials(Descriptor{Name: "mistral", APIKeyEnv: "CUSTOM_KEY"}, getenv)
	assert.Equal(t, "sk-custom", d.APIKey)

	d = ResolveCredentials(Descriptor{Name: "x", APIKey: "ENV:CUSTOM_KEY"}, getenv)
	assert.Equal(t, "sk-custom", d.APIKey)

	d = ResolveCredentials(Descriptor{Name: "ollama", KeyOptional: true, Enabled: true}, getenv)
	assert.Equal(t, "http://gpu:11434/v1", d.BaseURL)
	assert.True(t, d.Usable())

	d = ResolveCredentials(Descriptor{Name: "groq", Enabled: true}, getenv)
	assert.False(t, d.Usable())
}

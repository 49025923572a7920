package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nulzo/content-orchestrator/internal/config"
	"github.com/nulzo/content-orchestrator/internal/cost"
	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/internal/notify"
	"github.com/nulzo/content-orchestrator/internal/resilience"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Port: "0", Env: "test", ShutdownTimeout: time.Second},
		Log:     config.LogConfig{Level: "error", Format: "json"},
		Storage: config.StorageConfig{Driver: "memory"},
		Costs:   cost.DefaultLimits(),
		Retry:   resilience.DefaultRetryConfig(),
		Breakers: config.BreakersConfig{
			Default: resilience.DefaultBreakerConfig(),
			Presets: map[string]resilience.BreakerConfig{
				resilience.PublishDependency: {FailureThreshold: 2, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1},
			},
		},
	}
}

func TestNew_MemoryStack(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close(ctx)) }()

	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.Dedup)
	assert.Nil(t, a.Publisher, "no CMS configured")
	assert.NotNil(t, a.Server("test"))

	multi, ok := a.Notifier.(notify.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 1)

	routes, static := a.Router.Routes(ctx)
	assert.True(t, static)
	assert.NotEmpty(t, routes)
}

func TestNew_ConfiguredPresetOverridesDefault(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig())
	require.NoError(t, err)
	defer func() { _ = a.Close(ctx) }()

	b := a.Breakers.Get(resilience.PublishDependency)
	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.Record(errors.New("cms down"))
	}
	assert.Equal(t, resilience.StateOpen, b.State())
}

func TestNew_PublisherAndTelegramWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Publish = config.PublishConfig{URL: "http://cms.local", Token: "t", Timeout: time.Second}
	cfg.Notify = config.NotifyConfig{TelegramToken: "123:abc", TelegramChatID: "42"}

	ctx := context.Background()
	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = a.Close(ctx) }()

	assert.NotNil(t, a.Publisher)
	assert.Len(t, a.Notifier.(notify.Multi), 2)
}

func TestNew_MissingRoutingTableFails(t *testing.T) {
	cfg := testConfig()
	cfg.Routing.TablePath = t.TempDir() + "/missing.yaml"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestMergeProviders(t *testing.T) {
	routed := []llm.Descriptor{
		{Name: "anthropic", DefaultModel: "claude-a", Priority: 1},
		{Name: "openai", DefaultModel: "gpt-a", Priority: 2},
	}
	configured := []llm.Descriptor{
		{Name: "openai", DefaultModel: "gpt-b", Priority: 5},
		{Name: "ollama", DefaultModel: "llama3", Priority: 9},
	}

	t.Run("configured entries win by name", func(t *testing.T) {
		load := mergeProviders(func(context.Context) ([]llm.Descriptor, error) { return routed, nil }, configured)
		out, err := load(context.Background())
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, "claude-a", out[0].DefaultModel)
		assert.Equal(t, "gpt-b", out[1].DefaultModel)
		assert.Equal(t, "ollama", out[2].Name)
	})

	t.Run("router failure still serves configured set", func(t *testing.T) {
		load := mergeProviders(func(context.Context) ([]llm.Descriptor, error) { return nil, errors.New("down") }, configured)
		out, err := load(context.Background())
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("router failure without configured set is an error", func(t *testing.T) {
		load := mergeProviders(func(context.Context) ([]llm.Descriptor, error) { return nil, errors.New("down") }, nil)
		_, err := load(context.Background())
		assert.Error(t, err)
	})
}

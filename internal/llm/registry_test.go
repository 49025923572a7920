package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var builds atomic.Int32

func init() {
	Register("registry-test", func(d Descriptor) (Provider, error) {
		builds.Add(1)
		return &scriptedChat{Base: Base{Desc: d}}, nil
	})
}

func testDescriptor(name string, priority int) Descriptor {
	return Descriptor{
		Name:         name,
		Type:         "registry-test",
		Kind:         KindLLM,
		DefaultModel: name + "-default",
		APIKey:       "key",
		Enabled:      true,
		Priority:     priority,
	}
}

func TestRegistry_SyncBuildsAndReusesInstances(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	before := builds.Load()

	n := r.Sync([]Descriptor{testDescriptor("a", 2), testDescriptor("b", 1)})
	assert.Equal(t, 2, n)
	assert.Equal(t, before+2, builds.Load())

	first, ok := r.Get(context.Background(), "a")
	require.True(t, ok)

	r.Sync([]Descriptor{testDescriptor("a", 2), testDescriptor("b", 1)})
	again, _ := r.Get(context.Background(), "a")
	assert.Same(t, first, again, "unchanged descriptors keep their instance")
	assert.Equal(t, before+2, builds.Load())

	names := []string{}
	for _, p := range r.List(context.Background()) {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"b", "a"}, names)
	assert.Equal(t, "a-default", r.DefaultModel(context.Background(), "a"))
}

func TestRegistry_SyncDropsUnusableAndRemoved(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Sync([]Descriptor{testDescriptor("a", 1), testDescriptor("b", 1)})

	noKey := testDescriptor("a", 1)
	noKey.APIKey = ""
	r.Sync([]Descriptor{noKey})

	_, ok := r.Get(context.Background(), "a")
	assert.False(t, ok)
	_, ok = r.Get(context.Background(), "b")
	assert.False(t, ok)
}

func TestRegistry_SyncSkipsUnknownTypeAndInvalid(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	unknown := testDescriptor("u", 1)
	unknown.Type = "nope"
	invalid := testDescriptor("v", 1)
	invalid.DefaultModel = ""

	assert.Equal(t, 0, r.Sync([]Descriptor{unknown, invalid}))
}

func TestRegistry_RefreshHonoursTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	calls := 0
	loader := func(context.Context) ([]Descriptor, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("store down")
		}
		return []Descriptor{testDescriptor("a", 1)}, nil
	}

	r := NewRegistry(zap.NewNop(),
		WithLoader(loader, time.Minute),
		WithRegistryClock(func() time.Time { return now }),
	)

	_, ok := r.Get(context.Background(), "a")
	assert.True(t, ok)
	_, _ = r.Get(context.Background(), "a")
	assert.Equal(t, 1, calls)

	now = now.Add(time.Minute)
	_, ok = r.Get(context.Background(), "a")
	assert.Equal(t, 2, calls)
	assert.True(t, ok, "a failed reload keeps the previous providers")
}

func TestRegistry_AddIsNotManagedBySync(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Add(&scriptedChat{Base: Base{Desc: Descriptor{Name: "manual", DefaultModel: "m"}}})
	r.Sync(nil)

	p, ok := r.Get(context.Background(), "manual")
	require.True(t, ok)
	assert.Equal(t, "m", r.DefaultModel(context.Background(), "manual"))
	assert.Equal(t, "manual", p.Name())
}

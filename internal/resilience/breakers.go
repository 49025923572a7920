package resilience

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// PublishDependency names the breaker guarding the publishing collaborator.
const PublishDependency = "publish"

// LLMDependency names the breaker shared by every model of a provider.
func LLMDependency(provider string) string {
	return "llm:" + provider
}

// DefaultPresets returns the per-dependency-family breaker settings.
func DefaultPresets() map[string]BreakerConfig {
	return map[string]BreakerConfig{
		"llm":             {FailureThreshold: 3, ResetTimeout: 120 * time.Second, HalfOpenMaxCalls: 3},
		PublishDependency: {FailureThreshold: 5, ResetTimeout: 30 * time.Second, HalfOpenMaxCalls: 3},
	}
}

// Breakers lazily creates one breaker per dependency name.
type Breakers struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults BreakerConfig
	presets  map[string]BreakerConfig
	opts     []BreakerOption
}

// NewBreakers creates a registry. Presets are matched on the full name first,
// then on the family prefix before ":".
func NewBreakers(defaults BreakerConfig, presets map[string]BreakerConfig, opts ...BreakerOption) *Breakers {
	if presets == nil {
		presets = map[string]BreakerConfig{}
	}
	return &Breakers{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
		presets:  presets,
		opts:     opts,
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Breakers) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[name]; ok {
		return b
	}
	b = NewBreaker(name, r.configFor(name), r.opts...)
	r.breakers[name] = b
	return b
}

func (r *Breakers) configFor(name string) BreakerConfig {
	if cfg, ok := r.presets[name]; ok {
		return cfg
	}
	if family, _, found := strings.Cut(name, ":"); found {
		if cfg, ok := r.presets[family]; ok {
			return cfg
		}
	}
	return r.defaults
}

// Snapshots returns every known breaker sorted by name.
func (r *Breakers) Snapshots() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset closes the named breaker. It reports false for unknown names.
func (r *Breakers) Reset(name string) bool {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	b.Reset()
	return true
}

// ResetAll closes every breaker.
func (r *Breakers) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}

package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/dedup"
	"github.com/nulzo/content-orchestrator/internal/resilience"
	"github.com/nulzo/content-orchestrator/internal/store/memory"
)

// fakeCMS is a tiny in-memory Payload collection server.
type fakeCMS struct {
	mu       sync.Mutex
	docs     map[string]map[string]any // id -> doc
	nextID   int
	failures int // answer 503 this many times first
	calls    map[string]int
	auth     []string
}

func newFakeCMS() *fakeCMS {
	return &fakeCMS{docs: map[string]map[string]any{}, calls: map[string]int{}}
}

func (f *fakeCMS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r.Method]++
	f.auth = append(f.auth, r.Header.Get("Authorization"))

	if f.failures > 0 {
		f.failures--
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/"), "/")
	switch r.Method {
	case http.MethodGet:
		slug := r.URL.Query().Get("where[slug][equals]")
		var docs []map[string]any
		for _, d := range f.docs {
			if d["slug"] == slug {
				docs = append(docs, d)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"docs": docs})
	case http.MethodPost:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.nextID++
		body["id"] = f.nextID
		f.docs[fmt.Sprint(f.nextID)] = body
		_ = json.NewEncoder(w).Encode(map[string]any{"doc": body, "message": "created"})
	case http.MethodPatch:
		id := parts[len(parts)-1]
		if _, ok := f.docs[id]; !ok {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["id"] = id
		f.docs[id] = body
		_ = json.NewEncoder(w).Encode(map[string]any{"doc": body})
	}
}

func (f *fakeCMS) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

type fixture struct {
	cms       *fakeCMS
	publisher *Publisher
	dedup     *dedup.Store
	breakers  *resilience.Breakers
}

func newFixture(t *testing.T, threshold int) *fixture {
	t.Helper()
	cms := newFakeCMS()
	srv := httptest.NewServer(cms)
	t.Cleanup(srv.Close)

	retry := resilience.DefaultRetryConfig().WithMaxRetries(2)
	retry.Sleep = func(context.Context, time.Duration) error { return nil }
	retry.Jitter = func() float64 { return 0 }

	breakers := resilience.NewBreakers(resilience.DefaultBreakerConfig(), map[string]resilience.BreakerConfig{
		resilience.PublishDependency: {FailureThreshold: threshold, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1},
	})
	store := dedup.New(memory.New().Content(), zap.NewNop())
	client := NewPayloadClient(srv.URL+"/", "secret", srv.Client())

	return &fixture{
		cms:       cms,
		dedup:     store,
		breakers:  breakers,
		publisher: NewPublisher(client, store, breakers, retry, zap.NewNop()),
	}
}

func TestPublish_CreateThenSkip(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	item := Item{Type: "articles", Slug: "winter-guide", Content: map[string]any{"slug": "winter-guide", "title": "Winter guide"}}

	res, err := f.publisher.Publish(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, dedup.ActionCreate, res.Action)
	assert.Equal(t, "1", res.ExternalID)
	assert.Equal(t, 1, res.Attempts)

	res, err = f.publisher.Publish(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, dedup.ActionSkip, res.Action)
	assert.Equal(t, 1, f.cms.count(http.MethodPost))
	assert.Equal(t, 0, f.cms.count(http.MethodPatch))
	assert.Contains(t, f.cms.auth, "users API-Key secret")
}

func TestPublish_ChangedContentUpdatesKnownDocument(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	_, err := f.publisher.Publish(ctx, Item{Type: "tyres", Slug: "alpin", Content: map[string]any{"slug": "alpin", "name": "Alpin 6"}})
	require.NoError(t, err)

	res, err := f.publisher.Publish(ctx, Item{Type: "tyres", Slug: "alpin", Content: map[string]any{"slug": "alpin", "name": "Alpin 7"}})
	require.NoError(t, err)
	assert.Equal(t, dedup.ActionUpdate, res.Action)
	assert.Equal(t, "1", res.ExternalID)
	assert.Equal(t, 1, f.cms.count(http.MethodPatch))
	// the external id was known, no lookup needed
	assert.Equal(t, 1, f.cms.count(http.MethodGet))
}

func TestPublish_AdoptsDocumentAlreadyInCMS(t *testing.T) {
	f := newFixture(t, 5)
	f.cms.docs["77"] = map[string]any{"id": 77, "slug": "pilot"}

	res, err := f.publisher.Publish(context.Background(), Item{Type: "tyres", Slug: "pilot", Content: map[string]any{"slug": "pilot", "name": "Pilot"}})
	require.NoError(t, err)
	assert.Equal(t, dedup.ActionCreate, res.Action)
	assert.Equal(t, "77", res.ExternalID)
	assert.Equal(t, 0, f.cms.count(http.MethodPost))
	assert.Equal(t, 1, f.cms.count(http.MethodPatch))

	recs, err := f.dedup.ListByType(context.Background(), "tyres", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "77", recs[0].ExternalID)
}

func TestPublish_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t, 5)
	f.cms.failures = 2

	res, err := f.publisher.Publish(context.Background(), Item{Type: "articles", Slug: "a", Content: map[string]any{"slug": "a"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
}

func TestPublish_BreakerOpensAndNothingIsRegistered(t *testing.T) {
	f := newFixture(t, 1)
	f.cms.failures = 100
	ctx := context.Background()
	item := Item{Type: "articles", Slug: "a", Content: map[string]any{"slug": "a"}}

	_, err := f.publisher.Publish(ctx, item)
	require.Error(t, err)
	assert.Equal(t, resilience.StateOpen, f.breakers.Get(resilience.PublishDependency).State())

	before := f.cms.count(http.MethodGet)
	_, err = f.publisher.Publish(ctx, item)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, before, f.cms.count(http.MethodGet))

	d, err := f.dedup.Decide(ctx, item.Type, item.Slug, item.Content)
	require.NoError(t, err)
	assert.Equal(t, dedup.ActionCreate, d.Action)
}

func TestPublishAll_Report(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.publisher.Publish(ctx, Item{Type: "articles", Slug: "old", Content: map[string]any{"slug": "old"}})
	require.NoError(t, err)

	report := f.publisher.PublishAll(ctx, []Item{
		{Type: "articles", Slug: "old", Content: map[string]any{"slug": "old"}},
		{Type: "articles", Slug: "new", Content: map[string]any{"slug": "new"}},
		{Type: "articles", Slug: "bad", Content: map[string]any{"ch": make(chan int)}},
	})
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Reasons(), 1)
	assert.True(t, strings.HasPrefix(report.Reasons()[0], "articles/bad: "))
}

func TestDocID_Unmarshal(t *testing.T) {
	var w payloadWrite
	require.NoError(t, json.Unmarshal([]byte(`{"doc":{"id":12,"slug":"x"}}`), &w))
	assert.Equal(t, &Document{ID: "12", Slug: "x"}, w.document())

	w = payloadWrite{}
	require.NoError(t, json.Unmarshal([]byte(`{"id":"abc"}`), &w))
	assert.Equal(t, "abc", w.document().ID)
}

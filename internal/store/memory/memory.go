// Package memory is a process-local store.Repository used when no database
// is configured and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nulzo/content-orchestrator/internal/store"
	"github.com/nulzo/content-orchestrator/internal/store/model"
)

type Repository struct {
	mu          sync.RWMutex
	costs       []model.CostEntry
	lastUpdated time.Time
	content     map[string]model.ContentRecord
}

func New() *Repository {
	return &Repository{content: make(map[string]model.ContentRecord)}
}

func (r *Repository) Costs() store.CostRepository     { return costRepo{r} }
func (r *Repository) Content() store.ContentRepository { return contentRepo{r} }
func (r *Repository) Close() error                     { return nil }

// WithTx runs fn against the same repository. Writes are not rolled back.
func (r *Repository) WithTx(_ context.Context, fn func(repo store.Repository) error) error {
	return fn(r)
}

type costRepo struct{ r *Repository }

func (c costRepo) Append(_ context.Context, e *model.CostEntry) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	c.r.costs = append(c.r.costs, *e)
	c.r.lastUpdated = time.Now()
	return nil
}

func (c costRepo) SumSince(ctx context.Context, since time.Time) (float64, error) {
	entries, _ := c.ListSince(ctx, since)
	total := 0.0
	for _, e := range entries {
		total += e.Cost
	}
	return total, nil
}

func (c costRepo) ListSince(_ context.Context, since time.Time) ([]model.CostEntry, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	var out []model.CostEntry
	for _, e := range c.r.costs {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (c costRepo) Recent(_ context.Context, n int) ([]model.CostEntry, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	out := append([]model.CostEntry(nil), c.r.costs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (c costRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	kept := c.r.costs[:0]
	for _, e := range c.r.costs {
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := int64(len(c.r.costs) - len(kept))
	c.r.costs = kept
	return removed, nil
}

func (c costRepo) DeleteAll(context.Context) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.costs = nil
	c.r.lastUpdated = time.Time{}
	return nil
}

func (c costRepo) LastUpdated(context.Context) (time.Time, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	return c.r.lastUpdated, nil
}

type contentRepo struct{ r *Repository }

func key(contentType, slug string) string { return contentType + "\x00" + slug }

func (c contentRepo) GetBySlug(_ context.Context, contentType, slug string) (*model.ContentRecord, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	rec, ok := c.r.content[key(contentType, slug)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (c contentRepo) FindByHash(_ context.Context, contentType, hash string) (*model.ContentRecord, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	var found *model.ContentRecord
	for _, rec := range c.r.content {
		if rec.Type == contentType && rec.ContentHash == hash {
			if found == nil || rec.CreatedAt.Before(found.CreatedAt) {
				rec := rec
				found = &rec
			}
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (c contentRepo) Upsert(_ context.Context, rec *model.ContentRecord) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	now := time.Now()
	k := key(rec.Type, rec.Slug)
	if old, ok := c.r.content[k]; ok {
		old.ContentHash = rec.ContentHash
		if rec.ExternalID != "" {
			old.ExternalID = rec.ExternalID
		}
		old.UpdatedAt = now
		c.r.content[k] = old
		*rec = old
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt, rec.UpdatedAt = now, now
	c.r.content[k] = *rec
	return nil
}

func (c contentRepo) UpdateExternalID(_ context.Context, contentType, slug, externalID string) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	k := key(contentType, slug)
	rec, ok := c.r.content[k]
	if !ok {
		return store.ErrNotFound
	}
	rec.ExternalID = externalID
	rec.UpdatedAt = time.Now()
	c.r.content[k] = rec
	return nil
}

func (c contentRepo) ListByType(_ context.Context, contentType string, limit int) ([]model.ContentRecord, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	var out []model.ContentRecord
	for _, rec := range c.r.content {
		if rec.Type == contentType {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c contentRepo) Delete(_ context.Context, contentType, slug string) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	k := key(contentType, slug)
	if _, ok := c.r.content[k]; !ok {
		return store.ErrNotFound
	}
	delete(c.r.content, k)
	return nil
}

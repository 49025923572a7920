package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nulzo/content-orchestrator/internal/store"
	"github.com/nulzo/content-orchestrator/internal/store/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	repo, err := NewSQLiteStorage(dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestCosts_AppendAndSum(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	costs := repo.Costs()

	now := time.Now()
	old := now.Add(-48 * time.Hour)
	require.NoError(t, costs.Append(ctx, &model.CostEntry{Provider: "openai", Model: "gpt-4o", Cost: 1.5, Success: true, CreatedAt: old}))
	require.NoError(t, costs.Append(ctx, &model.CostEntry{Provider: "openai", Model: "gpt-4o", Cost: 0.25, Success: true, CreatedAt: now}))
	require.NoError(t, costs.Append(ctx, &model.CostEntry{Provider: "anthropic", Model: "claude", Success: false, Error: "boom", CreatedAt: now}))

	total, err := costs.SumSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, total, 1e-9)

	total, err = costs.SumSince(ctx, old.Add(-time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 1.75, total, 1e-9)

	entries, err := costs.ListSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Success && entries[1].Success)

	recent, err := costs.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.WithinDuration(t, now, recent[0].CreatedAt, time.Millisecond)

	last, err := costs.LastUpdated(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), last, time.Minute)
}

func TestCosts_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	costs := newTestRepo(t).Costs()

	now := time.Now()
	require.NoError(t, costs.Append(ctx, &model.CostEntry{Provider: "p", Model: "m", Cost: 1, CreatedAt: now.AddDate(0, 0, -91)}))
	require.NoError(t, costs.Append(ctx, &model.CostEntry{Provider: "p", Model: "m", Cost: 1, CreatedAt: now.AddDate(0, 0, -10)}))

	n, err := costs.DeleteBefore(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, costs.DeleteAll(ctx))
	recent, err := costs.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	last, err := costs.LastUpdated(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestWithTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	err := repo.WithTx(ctx, func(tx store.Repository) error {
		require.NoError(t, tx.Costs().Append(ctx, &model.CostEntry{Provider: "p", Model: "m", Cost: 3}))
		return errors.New("abort")
	})
	require.Error(t, err)

	total, err := repo.Costs().SumSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestContent_UpsertCoalescesExternalID(t *testing.T) {
	ctx := context.Background()
	content := newTestRepo(t).Content()

	rec := &model.ContentRecord{Type: "tyre", Slug: "pilot-sport-5", ContentHash: "aaa", ExternalID: "cms-1"}
	require.NoError(t, content.Upsert(ctx, rec))
	firstID := rec.ID

	rec2 := &model.ContentRecord{Type: "tyre", Slug: "pilot-sport-5", ContentHash: "bbb"}
	require.NoError(t, content.Upsert(ctx, rec2))

	assert.Equal(t, firstID, rec2.ID)
	assert.Equal(t, "bbb", rec2.ContentHash)
	assert.Equal(t, "cms-1", rec2.ExternalID, "a known external id survives an upsert without one")

	found, err := content.FindByHash(ctx, "tyre", "bbb")
	require.NoError(t, err)
	assert.Equal(t, "pilot-sport-5", found.Slug)

	_, err = content.FindByHash(ctx, "article", "bbb")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestContent_UpdateListDelete(t *testing.T) {
	ctx := context.Background()
	content := newTestRepo(t).Content()

	require.NoError(t, content.Upsert(ctx, &model.ContentRecord{Type: "article", Slug: "a", ContentHash: "1"}))
	require.NoError(t, content.Upsert(ctx, &model.ContentRecord{Type: "article", Slug: "b", ContentHash: "2"}))

	require.NoError(t, content.UpdateExternalID(ctx, "article", "a", "ext-a"))
	got, err := content.GetBySlug(ctx, "article", "a")
	require.NoError(t, err)
	assert.Equal(t, "ext-a", got.ExternalID)

	assert.ErrorIs(t, content.UpdateExternalID(ctx, "article", "zzz", "x"), store.ErrNotFound)

	list, err := content.ListByType(ctx, "article", 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, content.Delete(ctx, "article", "b"))
	_, err = content.GetBySlug(ctx, "article", "b")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

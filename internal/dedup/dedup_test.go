package dedup

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/store"
	"github.com/nulzo/content-orchestrator/internal/store/memory"
	"github.com/nulzo/content-orchestrator/internal/store/sqlite"
)

func backends(t *testing.T) map[string]store.Repository {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "dedup.db") + "?_busy_timeout=5000"
	db, err := sqlite.NewSQLiteStorage(dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return map[string]store.Repository{"memory": memory.New(), "sqlite": db}
}

func TestHash_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"title": "Winter tyres", "meta": map[string]any{"b": 2, "a": 1}}
	b := map[string]any{"meta": map[string]any{"a": 1, "b": 2}, "title": "Winter tyres"}

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, HashLength)

	hc, err := Hash(map[string]any{"title": "Summer tyres"})
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestCanonicalize_StructAndMapAgree(t *testing.T) {
	type article struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	fromStruct, err := Canonicalize(article{Title: "t", Body: "b"})
	require.NoError(t, err)
	fromMap, err := Canonicalize(map[string]string{"title": "t", "body": "b"})
	require.NoError(t, err)
	assert.Equal(t, `{"body":"b","title":"t"}`, string(fromStruct))
	assert.Equal(t, fromStruct, fromMap)
}

func TestCanonicalize_Unencodable(t *testing.T) {
	_, err := Canonicalize(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestDecide_Lifecycle(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(repo.Content(), zap.NewNop())
			content := map[string]any{"title": "Best winter tyres", "body": "..."}

			d, err := s.Decide(ctx, "article", "best-winter", content)
			require.NoError(t, err)
			assert.Equal(t, ActionCreate, d.Action)
			assert.Empty(t, d.ExistingID)

			rec, err := s.Register(ctx, "article", "best-winter", content, "ext-1")
			require.NoError(t, err)
			assert.Equal(t, d.Hash, rec.ContentHash)

			d, err = s.Decide(ctx, "article", "best-winter", content)
			require.NoError(t, err)
			assert.Equal(t, ActionSkip, d.Action)
			assert.Equal(t, "Content unchanged, skipping", d.Reason)
			assert.Equal(t, rec.ID, d.ExistingID)
			assert.Equal(t, "ext-1", d.ExternalID)

			changed := map[string]any{"title": "Best winter tyres 2026", "body": "..."}
			d, err = s.Decide(ctx, "article", "best-winter", changed)
			require.NoError(t, err)
			assert.Equal(t, ActionUpdate, d.Action)
			assert.Equal(t, rec.ID, d.ExistingID)
		})
	}
}

func TestDecide_DuplicateUnderAnotherSlug(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(repo.Content(), nil)
			content := map[string]any{"name": "Alpin 6"}

			_, err := s.Register(ctx, "tyre", "alpin-6", content, "")
			require.NoError(t, err)

			d, err := s.Decide(ctx, "tyre", "alpin-6-copy", content)
			require.NoError(t, err)
			assert.Equal(t, ActionSkip, d.Action)
			assert.Equal(t, "Identical content exists for tyre/alpin-6", d.Reason)

			// other types do not collide
			d, err = s.Decide(ctx, "article", "alpin-6", content)
			require.NoError(t, err)
			assert.Equal(t, ActionCreate, d.Action)
		})
	}
}

func TestRegister_KeepsExternalID(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(repo.Content(), nil)

			_, err := s.Register(ctx, "tyre", "pilot", map[string]any{"v": 1}, "cms-42")
			require.NoError(t, err)
			rec, err := s.Register(ctx, "tyre", "pilot", map[string]any{"v": 2}, "")
			require.NoError(t, err)
			assert.Equal(t, "cms-42", rec.ExternalID)

			require.NoError(t, s.UpdateExternalID(ctx, "tyre", "pilot", "cms-43"))
			list, err := s.ListByType(ctx, "tyre", 10)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "cms-43", list[0].ExternalID)

			require.NoError(t, s.Delete(ctx, "tyre", "pilot"))
			d, err := s.Decide(ctx, "tyre", "pilot", map[string]any{"v": 2})
			require.NoError(t, err)
			assert.Equal(t, ActionCreate, d.Action)
		})
	}
}

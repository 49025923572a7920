package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nulzo/content-orchestrator/internal/store/model"
)

const contentColumns = `id, type, slug, content_hash, COALESCE(external_id, '') AS external_id, created_at, updated_at`

type contentRepo struct {
	db DB
}

func (r *contentRepo) GetBySlug(ctx context.Context, contentType, slug string) (*model.ContentRecord, error) {
	var rec model.ContentRecord
	query := `SELECT ` + contentColumns + ` FROM content_records WHERE type = ? AND slug = ?`
	if err := r.db.GetContext(ctx, &rec, query, contentType, slug); err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (r *contentRepo) FindByHash(ctx context.Context, contentType, hash string) (*model.ContentRecord, error) {
	var rec model.ContentRecord
	query := `SELECT ` + contentColumns + ` FROM content_records WHERE type = ? AND content_hash = ? ORDER BY created_at LIMIT 1`
	if err := r.db.GetContext(ctx, &rec, query, contentType, hash); err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (r *contentRepo) Upsert(ctx context.Context, rec *model.ContentRecord) error {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt, rec.UpdatedAt = now, now

	query := `
	INSERT INTO content_records (id, type, slug, content_hash, external_id, created_at, updated_at)
	VALUES (:id, :type, :slug, :content_hash, NULLIF(:external_id, ''), :created_at, :updated_at)
	ON CONFLICT(type, slug) DO UPDATE SET
		content_hash = excluded.content_hash,
		external_id  = COALESCE(excluded.external_id, content_records.external_id),
		updated_at   = excluded.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to upsert content record: %w", err)
	}

	stored, err := r.GetBySlug(ctx, rec.Type, rec.Slug)
	if err != nil {
		return err
	}
	*rec = *stored
	return nil
}

func (r *contentRepo) UpdateExternalID(ctx context.Context, contentType, slug, externalID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE content_records SET external_id = ?, updated_at = ? WHERE type = ? AND slug = ?`,
		externalID, time.Now().UTC(), contentType, slug)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *contentRepo) ListByType(ctx context.Context, contentType string, limit int) ([]model.ContentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []model.ContentRecord
	query := `SELECT ` + contentColumns + ` FROM content_records WHERE type = ? ORDER BY updated_at DESC LIMIT ?`
	err := r.db.SelectContext(ctx, &recs, query, contentType, limit)
	return recs, err
}

func (r *contentRepo) Delete(ctx context.Context, contentType, slug string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM content_records WHERE type = ? AND slug = ?`, contentType, slug)
	if err != nil {
		return err
	}
	return requireRow(res)
}

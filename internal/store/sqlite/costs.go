package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nulzo/content-orchestrator/internal/store/model"
)

// Times are written in UTC so that lexical DATETIME comparisons hold.
type costRepo struct {
	db DB
}

func (r *costRepo) Append(ctx context.Context, e *model.CostEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	query := `
	INSERT INTO cost_entries (
		id, provider, model, task_type, input_tokens, output_tokens,
		cost, latency_ms, success, error, created_at
	) VALUES (
		:id, :provider, :model, :task_type, :input_tokens, :output_tokens,
		:cost, :latency_ms, :success, :error, :created_at
	)`
	if _, err := r.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("failed to append cost entry: %w", err)
	}

	meta := `
	INSERT INTO ledger_meta (id, last_updated) VALUES (1, ?)
	ON CONFLICT(id) DO UPDATE SET last_updated = excluded.last_updated`
	if _, err := r.db.ExecContext(ctx, meta, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update ledger timestamp: %w", err)
	}
	return nil
}

func (r *costRepo) SumSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(cost), 0) FROM cost_entries WHERE created_at >= ?`, since.UTC())
	return total, err
}

func (r *costRepo) ListSince(ctx context.Context, since time.Time) ([]model.CostEntry, error) {
	var entries []model.CostEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT * FROM cost_entries WHERE created_at >= ? ORDER BY created_at ASC`, since.UTC())
	return entries, err
}

func (r *costRepo) Recent(ctx context.Context, n int) ([]model.CostEntry, error) {
	var entries []model.CostEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT * FROM cost_entries ORDER BY created_at DESC LIMIT ?`, n)
	return entries, err
}

func (r *costRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cost_entries WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *costRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cost_entries`); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM ledger_meta`)
	return err
}

func (r *costRepo) LastUpdated(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := r.db.GetContext(ctx, &t, `SELECT last_updated FROM ledger_meta WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	return t, err
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/nulzo/content-orchestrator/internal/store/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Repository is the main contract for the data layer.
type Repository interface {
	Costs() CostRepository
	Content() ContentRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

// CostRepository persists the append-only spend ledger.
type CostRepository interface {
	// Append stores one entry and bumps the ledger last-updated marker.
	Append(ctx context.Context, entry *model.CostEntry) error
	// SumSince totals the cost of entries created at or after since.
	SumSince(ctx context.Context, since time.Time) (float64, error)
	// ListSince returns entries created at or after since, oldest first.
	ListSince(ctx context.Context, since time.Time) ([]model.CostEntry, error)
	// Recent returns the last n entries, newest first.
	Recent(ctx context.Context, n int) ([]model.CostEntry, error)
	// DeleteBefore purges entries older than cutoff and returns how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteAll empties the ledger.
	DeleteAll(ctx context.Context) error
	// LastUpdated returns the time of the last ledger write, zero if none.
	LastUpdated(ctx context.Context) (time.Time, error)
}

// ContentRepository stores dedup records keyed by (type, slug).
type ContentRepository interface {
	GetBySlug(ctx context.Context, contentType, slug string) (*model.ContentRecord, error)
	// FindByHash returns a record of contentType with the given hash, if any.
	FindByHash(ctx context.Context, contentType, hash string) (*model.ContentRecord, error)
	// Upsert inserts or replaces the hash of (type, slug). A known external
	// id is never overwritten by an empty one.
	Upsert(ctx context.Context, rec *model.ContentRecord) error
	UpdateExternalID(ctx context.Context, contentType, slug, externalID string) error
	ListByType(ctx context.Context, contentType string, limit int) ([]model.ContentRecord, error)
	Delete(ctx context.Context, contentType, slug string) error
}

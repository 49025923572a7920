package model

import (
	"time"
)

// CostEntry is one line of the spend ledger, written once per attempt that
// returned (success or terminal failure).
type CostEntry struct {
	ID           string    `db:"id" json:"id"`
	Provider     string    `db:"provider" json:"provider"`
	Model        string    `db:"model" json:"model"`
	TaskType     string    `db:"task_type" json:"task_type"`
	InputTokens  int       `db:"input_tokens" json:"input_tokens"`
	OutputTokens int       `db:"output_tokens" json:"output_tokens"`
	Cost         float64   `db:"cost" json:"cost"`
	LatencyMs    int64     `db:"latency_ms" json:"latency_ms"`
	Success      bool      `db:"success" json:"success"`
	Error        string    `db:"error" json:"error,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ContentRecord remembers what was published for a (type, slug) pair.
type ContentRecord struct {
	ID          string    `db:"id" json:"id"`
	Type        string    `db:"type" json:"type"`
	Slug        string    `db:"slug" json:"slug"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	ExternalID  string    `db:"external_id" json:"external_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

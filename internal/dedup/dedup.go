// Package dedup decides whether generated content needs to be published by
// comparing a canonical hash of it with what was published before.
package dedup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/store"
	"github.com/nulzo/content-orchestrator/internal/store/model"
)

// HashLength is the number of hex characters kept from the sha256 digest.
const HashLength = 32

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// Decision is the outcome of Decide.
type Decision struct {
	Action     Action `json:"action"`
	ExistingID string `json:"existing_id,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Hash       string `json:"hash"`
	Reason     string `json:"reason"`
}

// Canonicalize renders content as JSON with object keys sorted at every
// level, so two values that differ only in key order serialize the same.
func Canonicalize(content any) ([]byte, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode content: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to normalize content: %w", err)
	}
	// maps marshal with sorted keys
	return json.Marshal(generic)
}

// Hash returns the truncated sha256 of the canonical form of content.
func Hash(content any) (string, error) {
	canonical, err := Canonicalize(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:HashLength], nil
}

// Store wraps the content records repository.
type Store struct {
	repo   store.ContentRepository
	logger *zap.Logger
}

func New(repo store.ContentRepository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{repo: repo, logger: logger.Named("dedup")}
}

// Decide reports whether content for (contentType, slug) should be created,
// updated or skipped. Identical content already published under another slug
// of the same type is skipped.
func (s *Store) Decide(ctx context.Context, contentType, slug string, content any) (Decision, error) {
	hash, err := Hash(content)
	if err != nil {
		return Decision{}, err
	}

	existing, err := s.repo.GetBySlug(ctx, contentType, slug)
	switch {
	case errors.Is(err, store.ErrNotFound):
		dup, err := s.repo.FindByHash(ctx, contentType, hash)
		if err == nil {
			s.logger.Debug("duplicate content under another slug",
				zap.String("type", contentType),
				zap.String("slug", slug),
				zap.String("existing_slug", dup.Slug),
			)
			return Decision{
				Action:     ActionSkip,
				ExistingID: dup.ID,
				ExternalID: dup.ExternalID,
				Hash:       hash,
				Reason:     fmt.Sprintf("Identical content exists for %s/%s", dup.Type, dup.Slug),
			}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Decision{}, fmt.Errorf("failed to look up content hash: %w", err)
		}
		return Decision{Action: ActionCreate, Hash: hash, Reason: "New content, no existing record found"}, nil
	case err != nil:
		return Decision{}, fmt.Errorf("failed to look up content record: %w", err)
	}

	d := Decision{ExistingID: existing.ID, ExternalID: existing.ExternalID, Hash: hash}
	if existing.ContentHash == hash {
		d.Action, d.Reason = ActionSkip, "Content unchanged, skipping"
	} else {
		d.Action, d.Reason = ActionUpdate, "Content changed, needs update"
	}
	return d, nil
}

// Register records content as published. An empty externalID keeps the
// previously known one.
func (s *Store) Register(ctx context.Context, contentType, slug string, content any, externalID string) (*model.ContentRecord, error) {
	hash, err := Hash(content)
	if err != nil {
		return nil, err
	}
	rec := &model.ContentRecord{
		Type:        contentType,
		Slug:        slug,
		ContentHash: hash,
		ExternalID:  externalID,
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to register content: %w", err)
	}
	s.logger.Debug("registered content",
		zap.String("type", contentType),
		zap.String("slug", slug),
		zap.String("hash", hash),
	)
	return rec, nil
}

func (s *Store) UpdateExternalID(ctx context.Context, contentType, slug, externalID string) error {
	return s.repo.UpdateExternalID(ctx, contentType, slug, externalID)
}

// ListByType returns records of contentType, most recently updated first.
func (s *Store) ListByType(ctx context.Context, contentType string, limit int) ([]model.ContentRecord, error) {
	return s.repo.ListByType(ctx, contentType, limit)
}

func (s *Store) Delete(ctx context.Context, contentType, slug string) error {
	return s.repo.Delete(ctx, contentType, slug)
}

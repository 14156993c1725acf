package store

import (
	"context"
	"fmt"

	"basegraph.app/skillflow/core/db/sqlc"
	"basegraph.app/skillflow/internal/model"
)

type contentIndex struct {
	queries *sqlc.Queries
}

func newContentIndex(queries *sqlc.Queries) ContentIndex {
	return &contentIndex{queries: queries}
}

func (s *contentIndex) Contains(ctx context.Context, hash string) (bool, error) {
	found, err := s.queries.ContentHashExists(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("looking up content hash: %w", err)
	}
	return found, nil
}

// Add is idempotent; re-adding a known hash keeps the first entry.
func (s *contentIndex) Add(ctx context.Context, entry model.TrackedContent) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}

	err := s.queries.AddTrackedContent(ctx, sqlc.AddTrackedContentParams{
		Hash:      entry.Hash,
		Path:      entry.Path,
		PrNumber:  int32(entry.PRNumber),
		CreatedAt: createdAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("adding content hash: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"fmt"

	"basegraph.app/skillflow/common/id"
	"basegraph.app/skillflow/core/db/sqlc"
	"basegraph.app/skillflow/internal/model"
)

type executionResultStore struct {
	queries *sqlc.Queries
}

func newExecutionResultStore(queries *sqlc.Queries) ExecutionResultStore {
	return &executionResultStore{queries: queries}
}

func (s *executionResultStore) Create(ctx context.Context, result *model.ExecutionResult) error {
	if result.ID == 0 {
		result.ID = id.New()
	}
	if result.ExecutedAt.IsZero() {
		result.ExecutedAt = now()
	}

	details, err := encodeJSON(result.Details)
	if err != nil {
		return err
	}

	err = s.queries.CreateExecutionResult(ctx, sqlc.CreateExecutionResultParams{
		ID:         result.ID,
		PlanID:     result.PlanID,
		Success:    result.Success,
		Message:    result.Message,
		Details:    details,
		Error:      nullString(result.Error),
		ExecutedAt: result.ExecutedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("inserting execution result for plan %s: %w", result.PlanID, err)
	}
	return nil
}

func (s *executionResultStore) ListByPlan(ctx context.Context, planID string) ([]model.ExecutionResult, error) {
	rows, err := s.queries.ListExecutionResultsByPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("listing execution results: %w", err)
	}

	results := make([]model.ExecutionResult, 0, len(rows))
	for _, row := range rows {
		details, err := decodeDetails(row.Details)
		if err != nil {
			return nil, err
		}
		results = append(results, model.ExecutionResult{
			ID:         row.ID,
			PlanID:     row.PlanID,
			Success:    row.Success,
			Message:    row.Message,
			Details:    details,
			Error:      stringPtr(row.Error),
			ExecutedAt: row.ExecutedAt.UTC(),
		})
	}
	return results, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"basegraph.app/skillflow/core/db/sqlc"
	"basegraph.app/skillflow/internal/model"
)

type planStore struct {
	queries *sqlc.Queries
}

func newPlanStore(queries *sqlc.Queries) PlanStore {
	return &planStore{queries: queries}
}

func (s *planStore) Create(ctx context.Context, plan *model.UpdatePlan) error {
	data, err := encodeJSON(plan)
	if err != nil {
		return err
	}

	err = s.queries.CreatePlan(ctx, sqlc.CreatePlanParams{
		PlanID:          plan.PlanID,
		PlanType:        string(plan.PlanType),
		SourceIssue:     int32(plan.SourceIssue),
		Priority:        int32(plan.Priority),
		ExecutionStatus: string(plan.ExecutionStatus),
		PlanData:        data,
		CreatedAt:       plan.CreatedAt.UTC(),
		ExecutedAt:      nullTime(plan.ExecutedAt),
	})
	if err != nil {
		return fmt.Errorf("inserting plan %s: %w", plan.PlanID, err)
	}
	return nil
}

func (s *planStore) Get(ctx context.Context, planID string) (*model.UpdatePlan, error) {
	row, err := s.queries.GetPlan(ctx, planID)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading plan %s: %w", planID, err)
	}
	return decodePlan(row.PlanData, row.ExecutionStatus, row.ExecutedAt)
}

func (s *planStore) LatestForIssue(ctx context.Context, issueNumber int) (*model.UpdatePlan, error) {
	row, err := s.queries.LatestPlanForIssue(ctx, int32(issueNumber))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading latest plan for issue #%d: %w", issueNumber, err)
	}
	return decodePlan(row.PlanData, row.ExecutionStatus, row.ExecutedAt)
}

func (s *planStore) Save(ctx context.Context, plan *model.UpdatePlan) error {
	data, err := encodeJSON(plan)
	if err != nil {
		return err
	}

	affected, err := s.queries.SavePlan(ctx, sqlc.SavePlanParams{
		ExecutionStatus: string(plan.ExecutionStatus),
		PlanData:        data,
		ExecutedAt:      nullTime(plan.ExecutedAt),
		PlanID:          plan.PlanID,
	})
	if err != nil {
		return fmt.Errorf("saving plan %s: %w", plan.PlanID, err)
	}

	if affected == 0 {
		if _, err := s.Get(ctx, plan.PlanID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrPlanImmutable, plan.PlanID)
	}
	return nil
}

// decodePlan decodes plan_data; the status columns are authoritative.
func decodePlan(data, status string, executedAt sql.NullTime) (*model.UpdatePlan, error) {
	var plan model.UpdatePlan
	if err := json.Unmarshal([]byte(data), &plan); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	normalizeDetails(plan.Details)
	plan.ExecutionStatus = model.ExecutionStatus(status)
	plan.ExecutedAt = timePtr(executedAt)
	plan.CreatedAt = plan.CreatedAt.UTC()

	return &plan, nil
}

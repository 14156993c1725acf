package store

import (
	"context"
	"database/sql"
	"fmt"

	"basegraph.app/skillflow/core/db/sqlc"
	"basegraph.app/skillflow/internal/model"
)

type issueStore struct {
	queries *sqlc.Queries
}

func newIssueStore(queries *sqlc.Queries) IssueStore {
	return &issueStore{queries: queries}
}

func (s *issueStore) Upsert(ctx context.Context, issue *model.IssueRecord) (*model.IssueRecord, error) {
	labels, err := encodeList(issue.Labels)
	if err != nil {
		return nil, err
	}

	ts := now()
	err = s.queries.UpsertIssue(ctx, sqlc.UpsertIssueParams{
		Number:    int32(issue.Number),
		Title:     issue.Title,
		Body:      issue.Body,
		Author:    issue.Author,
		Labels:    labels,
		State:     issue.State,
		Reactions: int32(issue.Reactions),
		CreatedAt: ts,
		UpdatedAt: ts,
	})
	if err != nil {
		return nil, fmt.Errorf("upserting issue #%d: %w", issue.Number, err)
	}

	return s.Get(ctx, issue.Number)
}

func (s *issueStore) Get(ctx context.Context, number int) (*model.IssueRecord, error) {
	row, err := s.queries.GetIssue(ctx, int32(number))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading issue #%d: %w", number, err)
	}
	return toIssueModel(row)
}

func (s *issueStore) Transition(ctx context.Context, number int, t IssueTransition) error {
	if !t.From.CanTransitionTo(t.To) {
		return fmt.Errorf("%w: issue #%d %s -> %s", ErrInvalidTransition, number, t.From, t.To)
	}

	var severity sql.NullString
	if t.Severity != nil {
		severity = sql.NullString{String: string(*t.Severity), Valid: true}
	}

	affected, err := s.queries.TransitionIssue(ctx, sqlc.TransitionIssueParams{
		ToStatus:     string(t.To),
		FilterReason: nullString(t.FilterReason),
		Severity:     severity,
		PlanID:       nullString(t.PlanID),
		UpdatedAt:    now(),
		Number:       int32(number),
		FromStatus:   string(t.From),
	})
	if err != nil {
		return fmt.Errorf("updating issue #%d status: %w", number, err)
	}

	if affected == 0 {
		current, err := s.Get(ctx, number)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: issue #%d is %s, expected %s", ErrInvalidTransition, number, current.ProcessingStatus, t.From)
	}
	return nil
}

// toIssueModel converts sqlc.Issue to model.IssueRecord
func toIssueModel(row sqlc.Issue) (*model.IssueRecord, error) {
	labels, err := decodeList(row.Labels)
	if err != nil {
		return nil, err
	}

	issue := &model.IssueRecord{
		Number:           int(row.Number),
		Title:            row.Title,
		Body:             row.Body,
		Author:           row.Author,
		Labels:           labels,
		State:            row.State,
		Reactions:        int(row.Reactions),
		ProcessingStatus: model.IssueStatus(row.ProcessingStatus),
		FilterReason:     stringPtr(row.FilterReason),
		PlanID:           stringPtr(row.PlanID),
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if row.Severity.Valid {
		sev := model.Severity(row.Severity.String)
		issue.Severity = &sev
	}
	return issue, nil
}

package store

import (
	"context"
	"fmt"

	"basegraph.app/skillflow/core/db/sqlc"
	"basegraph.app/skillflow/internal/model"
)

type pullRequestStore struct {
	queries *sqlc.Queries
}

func newPullRequestStore(queries *sqlc.Queries) PullRequestStore {
	return &pullRequestStore{queries: queries}
}

func (s *pullRequestStore) Upsert(ctx context.Context, pr *model.PRRecord) (*model.PRRecord, error) {
	labels, err := encodeList(pr.Labels)
	if err != nil {
		return nil, err
	}

	ts := now()
	err = s.queries.UpsertPullRequest(ctx, sqlc.UpsertPullRequestParams{
		Number:    int32(pr.Number),
		Title:     pr.Title,
		Author:    pr.Author,
		State:     pr.State,
		HeadRef:   pr.HeadRef,
		HeadSha:   pr.HeadSHA,
		Labels:    labels,
		CreatedAt: ts,
		UpdatedAt: ts,
	})
	if err != nil {
		return nil, fmt.Errorf("upserting pull request #%d: %w", pr.Number, err)
	}

	return s.Get(ctx, pr.Number)
}

func (s *pullRequestStore) Get(ctx context.Context, number int) (*model.PRRecord, error) {
	row, err := s.queries.GetPullRequest(ctx, int32(number))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading pull request #%d: %w", number, err)
	}
	return toPullRequestModel(row)
}

func (s *pullRequestStore) Transition(ctx context.Context, number int, t PRTransition) error {
	if !t.From.CanTransitionTo(t.To) {
		return fmt.Errorf("%w: pull request #%d %s -> %s", ErrInvalidTransition, number, t.From, t.To)
	}

	validationErrors, err := encodeList(t.ValidationErrors)
	if err != nil {
		return err
	}
	hashes, err := encodeList(t.ContentHashes)
	if err != nil {
		return err
	}

	affected, err := s.queries.TransitionPullRequest(ctx, sqlc.TransitionPullRequestParams{
		ToStatus:         string(t.To),
		ValidationErrors: validationErrors,
		ContentHashes:    hashes,
		UpdatedAt:        now(),
		Number:           int32(number),
		FromStatus:       string(t.From),
	})
	if err != nil {
		return fmt.Errorf("updating pull request #%d status: %w", number, err)
	}

	if affected == 0 {
		current, err := s.Get(ctx, number)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: pull request #%d is %s, expected %s", ErrInvalidTransition, number, current.ProcessingStatus, t.From)
	}
	return nil
}

// toPullRequestModel converts sqlc.PullRequest to model.PRRecord
func toPullRequestModel(row sqlc.PullRequest) (*model.PRRecord, error) {
	pr := &model.PRRecord{
		Number:           int(row.Number),
		Title:            row.Title,
		Author:           row.Author,
		State:            row.State,
		HeadRef:          row.HeadRef,
		HeadSHA:          row.HeadSha,
		ProcessingStatus: model.PRStatus(row.ProcessingStatus),
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}

	var err error
	if pr.Labels, err = decodeList(row.Labels); err != nil {
		return nil, err
	}
	if pr.ValidationErrors, err = decodeList(row.ValidationErrors); err != nil {
		return nil, err
	}
	if pr.ContentHashes, err = decodeList(row.ContentHashes); err != nil {
		return nil, err
	}
	return pr, nil
}

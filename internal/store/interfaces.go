package store

import (
	"context"
	"errors"

	"basegraph.app/skillflow/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a status change is not allowed
	// from the record's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPlanImmutable is returned when writing to a completed plan.
	ErrPlanImmutable = errors.New("plan is completed and immutable")
)

// EventStore is the durable, append-only event log.
type EventStore interface {
	// Append records an inbound event. A delivery id seen before returns the
	// original record and created=false.
	Append(ctx context.Context, ev model.InboundEvent, category model.Category) (*model.StoredEvent, bool, error)
	Get(ctx context.Context, id int64) (*model.StoredEvent, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string, incrementRetry bool) error
	// MarkTerminal fails the event and lifts its retry count to maxRetries so
	// it is never picked up again.
	MarkTerminal(ctx context.Context, id int64, errMsg string, maxRetries int) error
	// PendingOrRetryable lists pending events and failed events with retries
	// left, oldest first.
	PendingOrRetryable(ctx context.Context, maxRetries, limit int) ([]model.StoredEvent, error)
	CountUnresolved(ctx context.Context, maxRetries int) (int, error)
	Stats(ctx context.Context) (model.EventStats, error)
}

// IssueTransition carries the optional fields written with a status change.
// Nil fields keep their stored value.
type IssueTransition struct {
	FilterReason *string
	Severity     *model.Severity
	PlanID       *string
	From         model.IssueStatus
	To           model.IssueStatus
}

type IssueStore interface {
	// Upsert writes the issue content keyed by number. The processing status
	// of an existing record is never changed by an upsert.
	Upsert(ctx context.Context, issue *model.IssueRecord) (*model.IssueRecord, error)
	Get(ctx context.Context, number int) (*model.IssueRecord, error)
	// Transition moves the issue from t.From to t.To, failing with
	// ErrInvalidTransition if the stored status is not t.From.
	Transition(ctx context.Context, number int, t IssueTransition) error
}

type PRTransition struct {
	ValidationErrors []string
	ContentHashes    []string
	From             model.PRStatus
	To               model.PRStatus
}

type PullRequestStore interface {
	Upsert(ctx context.Context, pr *model.PRRecord) (*model.PRRecord, error)
	Get(ctx context.Context, number int) (*model.PRRecord, error)
	Transition(ctx context.Context, number int, t PRTransition) error
}

type PlanStore interface {
	Create(ctx context.Context, plan *model.UpdatePlan) error
	Get(ctx context.Context, planID string) (*model.UpdatePlan, error)
	// LatestForIssue returns the most recent plan created for an issue.
	LatestForIssue(ctx context.Context, issueNumber int) (*model.UpdatePlan, error)
	// Save persists execution progress. Saving over a completed plan fails
	// with ErrPlanImmutable.
	Save(ctx context.Context, plan *model.UpdatePlan) error
}

type ExecutionResultStore interface {
	Create(ctx context.Context, result *model.ExecutionResult) error
	ListByPlan(ctx context.Context, planID string) ([]model.ExecutionResult, error)
}

// ContentIndex is the set of content hashes already accepted.
type ContentIndex interface {
	Contains(ctx context.Context, hash string) (bool, error)
	Add(ctx context.Context, entry model.TrackedContent) error
}

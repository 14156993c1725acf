package store

import (
	"basegraph.app/skillflow/core/db/sqlc"
)

// Stores hands out typed stores bound to one sqlc.Queries, backed by either
// the pool or a transaction.
//
//	err := database.WithTx(ctx, func(q *sqlc.Queries) error {
//	    stores := store.NewStores(q)
//	    ...
//	})
type Stores struct {
	queries *sqlc.Queries
}

func NewStores(queries *sqlc.Queries) *Stores {
	return &Stores{queries: queries}
}

func (s *Stores) Events() EventStore {
	return newEventStore(s.queries)
}

func (s *Stores) Issues() IssueStore {
	return newIssueStore(s.queries)
}

func (s *Stores) PullRequests() PullRequestStore {
	return newPullRequestStore(s.queries)
}

func (s *Stores) Plans() PlanStore {
	return newPlanStore(s.queries)
}

func (s *Stores) ExecutionResults() ExecutionResultStore {
	return newExecutionResultStore(s.queries)
}

func (s *Stores) Content() ContentIndex {
	return newContentIndex(s.queries)
}

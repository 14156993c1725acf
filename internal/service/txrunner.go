package service

import (
	"context"

	"basegraph.app/skillflow/core/db"
	"basegraph.app/skillflow/core/db/sqlc"
	"basegraph.app/skillflow/internal/store"
)

// StoreProvider exposes the stores used inside a transaction.
type StoreProvider interface {
	Issues() store.IssueStore
	PullRequests() store.PullRequestStore
	Plans() store.PlanStore
	Content() store.ContentIndex
}

// TxRunner runs functions within a transaction and provides stores bound to that transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

type dbTxRunner struct {
	db *db.DB
}

func NewTxRunner(db *db.DB) TxRunner {
	return &dbTxRunner{db: db}
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	return r.db.WithTx(ctx, func(q *sqlc.Queries) error {
		return fn(store.NewStores(q))
	})
}
